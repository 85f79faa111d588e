package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/ratelimit"
)

var ErrNoOpenSeaAPIKey = errors.New("no OpenSea API key provided")

// openSeaNFT represents the NFT object from the OpenSea API v2
type openSeaNFT struct {
	Identifier    string         `json:"identifier"`
	Collection    string         `json:"collection"`
	Contract      string         `json:"contract"`
	TokenStandard string         `json:"token_standard"`
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	ImageURL      *string        `json:"image_url"`
	AnimationURL  *string        `json:"animation_url"`
	MetadataURL   *string        `json:"metadata_url"`
	Creator       *string        `json:"creator"`
	Traits        []openSeaTrait `json:"traits"`
	UpdatedAt     *string        `json:"updated_at"`
}

// openSeaTrait represents a trait/attribute of an NFT
type openSeaTrait struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

type openSeaNFTResponse struct {
	NFT    openSeaNFT `json:"nft"`
	Errors []string   `json:"errors,omitempty"`
}

type openSeaListResponse struct {
	NFTs []openSeaNFT `json:"nfts"`
	Next string       `json:"next"`
}

// OpenSeaAdapter fetches Ethereum NFTs from the OpenSea REST API v2
type OpenSeaAdapter struct {
	httpClient adapter.HTTPClient
	limiter    ratelimit.Limiter
	apiURL     string
	apiKey     string
}

// NewOpenSeaAdapter creates a new OpenSea source adapter
func NewOpenSeaAdapter(httpClient adapter.HTTPClient, limiter ratelimit.Limiter, apiURL, apiKey string) *OpenSeaAdapter {
	return &OpenSeaAdapter{
		httpClient: httpClient,
		limiter:    limiter,
		apiURL:     apiURL,
		apiKey:     apiKey,
	}
}

// Name returns the source name this adapter serves
func (a *OpenSeaAdapter) Name() domain.SourceName {
	return domain.SourceOpenSea
}

// FetchRawNFT fetches NFT metadata from OpenSea API v2 and normalizes it
func (a *OpenSeaAdapter) FetchRawNFT(ctx context.Context, ref domain.SourceRef) (*domain.RawNFT, error) {
	if a.apiKey == "" {
		return nil, ErrNoOpenSeaAPIKey
	}

	reqURL := fmt.Sprintf("%s/chain/%s/contract/%s/nfts/%s",
		a.apiURL,
		"ethereum",
		strings.ToLower(ref.ContractAddress),
		ref.TokenID,
	)

	var response openSeaNFTResponse
	if err := fetchJSON(ctx, a.httpClient, a.limiter, string(domain.SourceOpenSea), reqURL, a.headers(), &response); err != nil {
		return nil, err
	}

	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("%w: OpenSea API errors: %v", domain.ErrSourceUnavailable, response.Errors)
	}

	return a.toRawNFT(&response.NFT), nil
}

// ListNFTs returns one cursor page of NFTs held by an Ethereum account
func (a *OpenSeaAdapter) ListNFTs(ctx context.Context, owner string, cursor string) (*Page, error) {
	if a.apiKey == "" {
		return nil, ErrNoOpenSeaAPIKey
	}

	reqURL := fmt.Sprintf("%s/chain/ethereum/account/%s/nfts?limit=50", a.apiURL, strings.ToLower(owner))
	if cursor != "" {
		reqURL += "&next=" + url.QueryEscape(cursor)
	}

	var response openSeaListResponse
	if err := fetchJSON(ctx, a.httpClient, a.limiter, string(domain.SourceOpenSea), reqURL, a.headers(), &response); err != nil {
		return nil, err
	}

	page := &Page{NextCursor: response.Next}
	for _, nft := range response.NFTs {
		page.Items = append(page.Items, domain.SourceRef{
			Source:          domain.SourceOpenSea,
			Blockchain:      domain.BlockchainEthereum,
			ContractAddress: nft.Contract,
			TokenID:         nft.Identifier,
		})
	}

	return page, nil
}

func (a *OpenSeaAdapter) headers() map[string]string {
	return map[string]string{"X-API-KEY": a.apiKey}
}

func (a *OpenSeaAdapter) toRawNFT(nft *openSeaNFT) *domain.RawNFT {
	raw := &domain.RawNFT{
		SourceName:           domain.SourceOpenSea,
		Blockchain:           domain.BlockchainEthereum,
		Standard:             openSeaStandard(nft.TokenStandard),
		ContractAddress:      nft.Contract,
		TokenID:              nft.Identifier,
		Title:                domain.SafeString(nft.Name),
		Description:          domain.SafeString(nft.Description),
		ImageURL:             domain.SafeString(nft.ImageURL),
		AnimationURL:         domain.SafeString(nft.AnimationURL),
		MetadataURL:          domain.SafeString(nft.MetadataURL),
		CollectionExternalID: nft.Collection,
		CollectionTitle:      collectionTitleFromSlug(nft.Collection),
	}

	for _, trait := range nft.Traits {
		raw.Traits = append(raw.Traits, domain.Trait{TraitType: trait.TraitType, Value: trait.Value})
	}

	// Artist names sometimes hide in traits rather than a dedicated field.
	// A collaboration stays one creator per collaborator.
	names := artistsFromTraits(raw.Traits)
	creatorAddress := domain.SafeString(nft.Creator)
	if len(names) == 1 && creatorAddress != "" {
		// A single trait name labels the on-chain creator wallet
		raw.Creators = []domain.Creator{{Name: names[0], Address: creatorAddress}}
	} else {
		if creatorAddress != "" {
			raw.Creators = append(raw.Creators, domain.Creator{Address: creatorAddress})
		}
		for _, name := range names {
			raw.Creators = append(raw.Creators, domain.Creator{Name: name})
		}
	}

	if payload, err := json.Marshal(nft); err == nil {
		raw.RawPayload = payload
	}

	if nft.UpdatedAt != nil {
		if ts, err := time.Parse(time.RFC3339, *nft.UpdatedAt); err == nil {
			raw.MintedAt = &ts
		}
	}

	return raw
}

func openSeaStandard(s string) domain.Standard {
	switch strings.ToLower(s) {
	case "erc721":
		return domain.StandardERC721
	case "erc1155":
		return domain.StandardERC1155
	}
	return ""
}

// collectionTitleFromSlug turns an OpenSea collection slug into a readable title
func collectionTitleFromSlug(slug string) string {
	if slug == "" {
		return ""
	}
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// artistsFromTraits extracts artist names from trait values, following the
// common marketplace convention of artist/creator trait types. Each distinct
// name stays a distinct artist.
func artistsFromTraits(traits []domain.Trait) []string {
	artistTraitNames := map[string]bool{
		"artist":       true,
		"artists":      true,
		"creator":      true,
		"artist name":  true,
		"creator name": true,
		"made by":      true,
		"created by":   true,
	}

	var names []string
	seen := make(map[string]bool)
	for _, trait := range traits {
		if !artistTraitNames[strings.ToLower(trait.TraitType)] {
			continue
		}
		if value, ok := trait.Value.(string); ok && value != "" && !seen[value] {
			names = append(names, value)
			seen[value] = true
		}
	}

	return names
}
