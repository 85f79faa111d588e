package sources

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/ratelimit"
	"github.com/lumenart/curator/internal/uri"
)

// MetadataAdapter imports an NFT directly from its metadata URL when no
// marketplace indexes it. The document is expected to follow the OpenSea
// metadata standard (https://docs.opensea.io/docs/metadata-standards).
type MetadataAdapter struct {
	httpClient adapter.HTTPClient
	limiter    ratelimit.Limiter
	rewriter   uri.Rewriter
}

// NewMetadataAdapter creates a new raw metadata-URL source adapter
func NewMetadataAdapter(httpClient adapter.HTTPClient, limiter ratelimit.Limiter, rewriter uri.Rewriter) *MetadataAdapter {
	return &MetadataAdapter{
		httpClient: httpClient,
		limiter:    limiter,
		rewriter:   rewriter,
	}
}

// Name returns the source name this adapter serves
func (a *MetadataAdapter) Name() domain.SourceName {
	return domain.SourceMetadata
}

// FetchRawNFT fetches and normalizes the metadata document at ref.MetadataURL.
// The contract address and token id come from the ref since a bare metadata
// document carries no on-chain identity.
func (a *MetadataAdapter) FetchRawNFT(ctx context.Context, ref domain.SourceRef) (*domain.RawNFT, error) {
	if ref.MetadataURL == "" {
		return nil, fmt.Errorf("metadata source needs a metadata_url: %w", domain.ErrMalformedSource)
	}

	metadataURL := uri.ReplaceTokenPlaceholder(ref.MetadataURL, ref.TokenID)

	document, payload, err := a.fetchDocument(ctx, metadataURL)
	if err != nil {
		return nil, err
	}

	raw := &domain.RawNFT{
		SourceName:      domain.SourceMetadata,
		Blockchain:      ref.Blockchain,
		ContractAddress: ref.ContractAddress,
		TokenID:         ref.TokenID,
		MetadataURL:     metadataURL,
		RawPayload:      payload,
	}
	FoldMetadataDocument(raw, document)

	return raw, nil
}

// fetchDocument loads the JSON metadata document, handling data: URIs inline
func (a *MetadataAdapter) fetchDocument(ctx context.Context, metadataURL string) (map[string]any, json.RawMessage, error) {
	if uri.IsDataURI(metadataURL) {
		return ParseDataURIDocument(metadataURL)
	}

	fetchURL := a.rewriter.Rewrite(metadataURL)

	var document map[string]any
	if err := fetchJSON(ctx, a.httpClient, a.limiter, string(domain.SourceMetadata), fetchURL, nil, &document); err != nil {
		return nil, nil, err
	}

	payload, err := json.Marshal(document)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to re-marshal metadata document: %w", err)
	}

	return document, payload, nil
}

// ParseDataURIDocument decodes data:application/json documents, both base64
// and plain-text encoded
func ParseDataURIDocument(dataURI string) (map[string]any, json.RawMessage, error) {
	parts := strings.SplitN(strings.TrimPrefix(dataURI, "data:"), ",", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid data URI: %w", domain.ErrMalformedSource)
	}

	data := parts[1]
	if strings.Contains(parts[0], "base64") {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode base64 metadata: %w", err)
		}
		data = string(decoded)
	}

	var document map[string]any
	if err := json.Unmarshal([]byte(data), &document); err != nil {
		return nil, nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}

	return document, json.RawMessage(data), nil
}

// FoldMetadataDocument maps an OpenSea-standard metadata document onto the
// raw NFT shape. Only empty raw fields are filled so adapter-provided
// structured fields keep precedence over the off-chain document.
func FoldMetadataDocument(raw *domain.RawNFT, document map[string]any) {
	if document == nil {
		return
	}

	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			if value, ok := document[key].(string); ok {
				*dst = value
			}
		}
	}

	setIfEmpty(&raw.Title, "name")
	setIfEmpty(&raw.Description, "description")
	setIfEmpty(&raw.ImageURL, "image")
	setIfEmpty(&raw.ImageURL, "image_url")
	setIfEmpty(&raw.AnimationURL, "animation_url")
	setIfEmpty(&raw.GeneratorURL, "generator_url")

	if len(raw.Creators) == 0 {
		for _, key := range []string{"artist", "created_by", "createdBy"} {
			if name, ok := document[key].(string); ok && name != "" {
				raw.Creators = append(raw.Creators, domain.Creator{Name: name})
				break
			}
		}
	}

	if len(raw.Traits) == 0 {
		if attributes, ok := document["attributes"].([]any); ok {
			for _, entry := range attributes {
				attribute, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				traitType, _ := attribute["trait_type"].(string)
				if traitType == "" {
					continue
				}
				raw.Traits = append(raw.Traits, domain.Trait{
					TraitType: traitType,
					Value:     attribute["value"],
				})
			}
		}
	}
}
