package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/ratelimit"
	"github.com/lumenart/curator/internal/retry"
)

// objktToken represents a token from the objkt v3 GraphQL API
type objktToken struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	DisplayURI   *string          `json:"display_uri"`
	ArtifactURI  *string          `json:"artifact_uri"`
	ThumbnailURI *string          `json:"thumbnail_uri"`
	Mime         *string          `json:"mime"`
	Supply       *string          `json:"supply"`
	Timestamp    *string          `json:"timestamp"`
	TokenID      string           `json:"token_id"`
	FA           objktFA          `json:"fa"`
	Creators     []objktCreator   `json:"creators"`
	Attributes   []objktAttribute `json:"attributes"`
}

type objktFA struct {
	Contract string  `json:"contract"`
	Name     *string `json:"name"`
	Path     *string `json:"path"`
}

type objktCreator struct {
	Holder objktHolder `json:"holder"`
}

type objktHolder struct {
	Address string  `json:"address"`
	Alias   *string `json:"alias"`
}

type objktAttribute struct {
	Attribute struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"attribute"`
}

type objktTokenResponse struct {
	Data struct {
		Token []objktToken `json:"token"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type graphQLRequest struct {
	Query         string      `json:"query"`
	Variables     interface{} `json:"variables"`
	OperationName string      `json:"operationName"`
}

// ObjktAdapter fetches Tezos NFTs from the objkt v3 GraphQL API
type ObjktAdapter struct {
	httpClient adapter.HTTPClient
	limiter    ratelimit.Limiter
	apiURL     string
}

// NewObjktAdapter creates a new objkt source adapter
func NewObjktAdapter(httpClient adapter.HTTPClient, limiter ratelimit.Limiter, apiURL string) *ObjktAdapter {
	return &ObjktAdapter{
		httpClient: httpClient,
		limiter:    limiter,
		apiURL:     apiURL,
	}
}

// Name returns the source name this adapter serves
func (a *ObjktAdapter) Name() domain.SourceName {
	return domain.SourceObjkt
}

const objktTokenQuery = `query GetToken($contract: String!, $tokenID: String!) {
  token(where: {fa_contract: {_eq: $contract}, token_id: {_eq: $tokenID}}) {
    token_id
    name
    description
    display_uri
    artifact_uri
    thumbnail_uri
    mime
    supply
    timestamp
    fa {
      contract
      name
      path
    }
    creators {
      holder {
        address
        alias
      }
    }
    attributes {
      attribute {
        name
        value
      }
    }
  }
}`

// FetchRawNFT fetches token data from objkt v3 and normalizes it
func (a *ObjktAdapter) FetchRawNFT(ctx context.Context, ref domain.SourceRef) (*domain.RawNFT, error) {
	request := graphQLRequest{
		Query: objktTokenQuery,
		Variables: map[string]string{
			"contract": ref.ContractAddress,
			"tokenID":  ref.TokenID,
		},
		OperationName: "GetToken",
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	var responseBody []byte
	err = retry.Do(ctx, fetchRetryConfig, func(ctx context.Context) error {
		if err := a.limiter.Wait(ctx, string(domain.SourceObjkt)); err != nil {
			return retry.Permanent(err)
		}
		responseBody, err = a.httpClient.Post(ctx, a.apiURL, "application/json", bytes.NewReader(requestBody))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: objkt: %v", domain.ErrSourceUnavailable, err)
	}

	var response objktTokenResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal objkt response: %w", err)
	}

	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("%w: objkt GraphQL errors: %v", domain.ErrSourceUnavailable, response.Errors)
	}

	if len(response.Data.Token) == 0 {
		return nil, fmt.Errorf("token %s/%s: %w", ref.ContractAddress, ref.TokenID, domain.ErrNotFound)
	}

	return a.toRawNFT(&response.Data.Token[0]), nil
}

func (a *ObjktAdapter) toRawNFT(token *objktToken) *domain.RawNFT {
	raw := &domain.RawNFT{
		SourceName:           domain.SourceObjkt,
		Blockchain:           domain.BlockchainTezos,
		Standard:             domain.StandardFA2,
		ContractAddress:      token.FA.Contract,
		TokenID:              token.TokenID,
		Title:                domain.SafeString(token.Name),
		Description:          domain.SafeString(token.Description),
		ImageURL:             domain.SafeString(token.DisplayURI),
		AnimationURL:         domain.SafeString(token.ArtifactURI),
		ThumbnailURL:         domain.SafeString(token.ThumbnailURI),
		MIMEType:             domain.SafeString(token.Mime),
		CollectionExternalID: token.FA.Contract,
		CollectionTitle:      domain.SafeString(token.FA.Name),
	}

	for _, creator := range token.Creators {
		raw.Creators = append(raw.Creators, domain.Creator{
			Name:    domain.SafeString(creator.Holder.Alias),
			Address: creator.Holder.Address,
		})
	}

	for _, attr := range token.Attributes {
		raw.Traits = append(raw.Traits, domain.Trait{
			TraitType: attr.Attribute.Name,
			Value:     attr.Attribute.Value,
		})
	}

	if token.Supply != nil {
		if supply, err := parseSupply(*token.Supply); err == nil {
			raw.Supply = supply
		}
	}

	if token.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339, *token.Timestamp); err == nil {
			raw.MintedAt = &ts
		}
	}

	if payload, err := json.Marshal(token); err == nil {
		raw.RawPayload = payload
	}

	return raw
}

func parseSupply(s string) (int64, error) {
	var supply int64
	_, err := fmt.Sscanf(s, "%d", &supply)
	return supply, err
}
