package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/ratelimit"
)

// tzktToken represents a token row from the TzKT tokens endpoint
type tzktToken struct {
	ID          uint64          `json:"id"`
	Contract    tzktAccount     `json:"contract"`
	TokenID     string          `json:"tokenId"`
	Standard    string          `json:"standard"`
	TotalSupply string          `json:"totalSupply"`
	FirstTime   *string         `json:"firstTime"`
	FirstMinter *tzktAccount    `json:"firstMinter"`
	Metadata    json.RawMessage `json:"metadata"`
}

type tzktAccount struct {
	Address string  `json:"address"`
	Alias   *string `json:"alias"`
}

// tzktTokenMetadata is the TZIP-21 metadata document TzKT indexes per token
type tzktTokenMetadata struct {
	Name         *string         `json:"name"`
	Description  *string         `json:"description"`
	ArtifactURI  *string         `json:"artifactUri"`
	DisplayURI   *string         `json:"displayUri"`
	ThumbnailURI *string         `json:"thumbnailUri"`
	GeneratorURI *string         `json:"generatorUri"`
	Creators     []string        `json:"creators"`
	Attributes   []tzktAttribute `json:"attributes"`
	Formats      []tzktFormat    `json:"formats"`
	Tags         []string        `json:"tags"`
}

type tzktAttribute struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type tzktFormat struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

type tzktBalance struct {
	Token tzktToken `json:"token"`
}

// TzKTAdapter fetches Tezos NFTs from the TzKT indexer REST API
type TzKTAdapter struct {
	httpClient adapter.HTTPClient
	limiter    ratelimit.Limiter
	apiURL     string
}

// NewTzKTAdapter creates a new TzKT source adapter
func NewTzKTAdapter(httpClient adapter.HTTPClient, limiter ratelimit.Limiter, apiURL string) *TzKTAdapter {
	return &TzKTAdapter{
		httpClient: httpClient,
		limiter:    limiter,
		apiURL:     apiURL,
	}
}

// Name returns the source name this adapter serves
func (a *TzKTAdapter) Name() domain.SourceName {
	return domain.SourceTzKT
}

// FetchRawNFT fetches token data from TzKT and normalizes it.
// TzKT serves the indexed TZIP-21 metadata inline, so no separate off-chain
// metadata fetch is needed for Tezos tokens.
func (a *TzKTAdapter) FetchRawNFT(ctx context.Context, ref domain.SourceRef) (*domain.RawNFT, error) {
	reqURL := fmt.Sprintf("%s/v1/tokens?contract=%s&tokenId=%s&limit=1",
		a.apiURL, url.QueryEscape(ref.ContractAddress), url.QueryEscape(ref.TokenID))

	var tokens []tzktToken
	if err := fetchJSON(ctx, a.httpClient, a.limiter, string(domain.SourceTzKT), reqURL, nil, &tokens); err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("token %s/%s: %w", ref.ContractAddress, ref.TokenID, domain.ErrNotFound)
	}

	return a.toRawNFT(&tokens[0]), nil
}

// ListNFTs returns one offset-cursor page of tokens held by a Tezos account
func (a *TzKTAdapter) ListNFTs(ctx context.Context, owner string, cursor string) (*Page, error) {
	const pageSize = 50

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid tzkt cursor %q: %w", cursor, err)
		}
		offset = parsed
	}

	reqURL := fmt.Sprintf("%s/v1/tokens/balances?account=%s&balance.gt=0&offset=%d&limit=%d",
		a.apiURL, url.QueryEscape(owner), offset, pageSize)

	var balances []tzktBalance
	if err := fetchJSON(ctx, a.httpClient, a.limiter, string(domain.SourceTzKT), reqURL, nil, &balances); err != nil {
		return nil, err
	}

	page := &Page{}
	for _, balance := range balances {
		page.Items = append(page.Items, domain.SourceRef{
			Source:          domain.SourceTzKT,
			Blockchain:      domain.BlockchainTezos,
			ContractAddress: balance.Token.Contract.Address,
			TokenID:         balance.Token.TokenID,
		})
	}

	if len(balances) == pageSize {
		page.NextCursor = strconv.Itoa(offset + pageSize)
	}

	return page, nil
}

func (a *TzKTAdapter) toRawNFT(token *tzktToken) *domain.RawNFT {
	raw := &domain.RawNFT{
		SourceName:           domain.SourceTzKT,
		Blockchain:           domain.BlockchainTezos,
		Standard:             domain.StandardFA2,
		ContractAddress:      token.Contract.Address,
		TokenID:              token.TokenID,
		CollectionExternalID: token.Contract.Address,
		CollectionTitle:      domain.SafeString(token.Contract.Alias),
		RawPayload:           token.Metadata,
	}

	if supply, err := strconv.ParseInt(token.TotalSupply, 10, 64); err == nil {
		raw.Supply = supply
	}

	if token.FirstTime != nil {
		if ts, err := time.Parse(time.RFC3339, *token.FirstTime); err == nil {
			raw.MintedAt = &ts
		}
	}

	if token.FirstMinter != nil {
		raw.Creators = append(raw.Creators, domain.Creator{
			Name:    domain.SafeString(token.FirstMinter.Alias),
			Address: token.FirstMinter.Address,
		})
	}

	// Fold the indexed TZIP-21 document straight into the raw shape
	var metadata tzktTokenMetadata
	if len(token.Metadata) > 0 && json.Unmarshal(token.Metadata, &metadata) == nil {
		raw.Title = domain.SafeString(metadata.Name)
		raw.Description = domain.SafeString(metadata.Description)
		raw.ImageURL = domain.SafeString(metadata.DisplayURI)
		raw.AnimationURL = domain.SafeString(metadata.ArtifactURI)
		raw.ThumbnailURL = domain.SafeString(metadata.ThumbnailURI)
		raw.GeneratorURL = domain.SafeString(metadata.GeneratorURI)

		if len(raw.Creators) == 0 {
			// Every TZIP-21 creator entry is a distinct collaborator
			for _, creator := range metadata.Creators {
				if domain.IsTezosAddress(creator) {
					raw.Creators = append(raw.Creators, domain.Creator{Address: creator})
				} else if creator != "" {
					raw.Creators = append(raw.Creators, domain.Creator{Name: creator})
				}
			}
		}

		for _, attr := range metadata.Attributes {
			raw.Traits = append(raw.Traits, domain.Trait{TraitType: attr.Name, Value: attr.Value})
		}

		// Prefer the artifact's declared format when present; the media
		// resolver re-sniffs content anyway
		for _, format := range metadata.Formats {
			if format.URI == raw.AnimationURL && format.MimeType != "" {
				raw.MIMEType = format.MimeType
				break
			}
		}
	}

	return raw
}
