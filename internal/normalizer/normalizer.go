package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/ratelimit"
	"github.com/lumenart/curator/internal/sources"
	"github.com/lumenart/curator/internal/uri"
)

const (
	offchainCacheTTL     = 15 * time.Minute
	offchainCacheCleanup = 30 * time.Minute
)

// Normalizer maps the common raw NFT shape plus off-chain JSON metadata to the
// canonical artwork attribute set. Precedence is fixed: structured adapter
// fields win over off-chain document fields unless the structured field is
// empty, and generator/animation URLs win over static images when choosing the
// primary renderable media reference.
type Normalizer struct {
	httpClient adapter.HTTPClient
	limiter    ratelimit.Limiter
	rewriter   uri.Rewriter
	cache      *gocache.Cache
}

// New creates a normalizer. The cache holds off-chain metadata documents so
// re-imports inside one sweep do not refetch the same URL.
func New(httpClient adapter.HTTPClient, limiter ratelimit.Limiter, rewriter uri.Rewriter) *Normalizer {
	return &Normalizer{
		httpClient: httpClient,
		limiter:    limiter,
		rewriter:   rewriter,
		cache:      gocache.New(offchainCacheTTL, offchainCacheCleanup),
	}
}

// Normalize folds the optional off-chain document into raw and maps the result
// to normalized fields. It never fails on missing optional fields; it fails
// only when the item has no identity at all (no contract+token and no title),
// which is a malformed source item.
//
// Title is deliberately left empty when the source has none: the "Untitled"
// default is applied once at the persistence boundary so every source gets the
// same default.
func (n *Normalizer) Normalize(raw *domain.RawNFT, offchain map[string]any) (*domain.NormalizedFields, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil raw nft: %w", domain.ErrMalformedSource)
	}

	// Work on a copy so folding the off-chain document never mutates the
	// caller's raw snapshot
	folded := *raw
	sources.FoldMetadataDocument(&folded, offchain)

	hasOnChainIdentity := folded.ContractAddress != "" && folded.TokenID != ""
	if !hasOnChainIdentity && folded.Title == "" {
		return nil, fmt.Errorf("no contract address, token id or title: %w", domain.ErrMalformedSource)
	}

	fields := &domain.NormalizedFields{
		Blockchain:      folded.Blockchain,
		Standard:        folded.Standard,
		ContractAddress: domain.NormalizeAddress(folded.Blockchain, folded.ContractAddress),
		TokenID:         folded.TokenID,

		Title:        folded.Title,
		Description:  folded.Description,
		ImageURL:     n.rewriteMediaURL(folded.ImageURL),
		AnimationURL: n.rewriteMediaURL(folded.AnimationURL),
		GeneratorURL: n.rewriteMediaURL(folded.GeneratorURL),
		ThumbnailURL: n.rewriteMediaURL(folded.ThumbnailURL),
		MIMEType:     folded.MIMEType,

		Traits: folded.Traits,

		MintedAt: folded.MintedAt,
		Supply:   folded.Supply,

		Artists:         artistHints(&folded),
		CollectionHints: collectionHints(&folded),
	}

	return fields, nil
}

// rewriteMediaURL converts ipfs:// references to gateway URLs before they are
// handed to media resolution. HTTP(S) and data: URIs pass through unchanged.
func (n *Normalizer) rewriteMediaURL(mediaURL string) string {
	if mediaURL == "" {
		return ""
	}
	return n.rewriter.Rewrite(mediaURL)
}

// FetchOffchainMetadata loads the JSON document behind a token's metadata URL.
// Unreachable URLs and non-JSON bodies degrade to nil rather than failing the
// import: the structured adapter fields alone are enough to save an artwork.
func (n *Normalizer) FetchOffchainMetadata(ctx context.Context, metadataURL string) map[string]any {
	if metadataURL == "" {
		return nil
	}

	if cached, found := n.cache.Get(metadataURL); found {
		document, _ := cached.(map[string]any)
		return document
	}

	document := n.fetchOffchainDocument(ctx, metadataURL)

	// Failures are cached too so a batch full of tokens pointing at the same
	// dead URL only probes it once
	n.cache.Set(metadataURL, document, gocache.DefaultExpiration)

	return document
}

func (n *Normalizer) fetchOffchainDocument(ctx context.Context, metadataURL string) map[string]any {
	if uri.IsDataURI(metadataURL) {
		document, _, err := sources.ParseDataURIDocument(metadataURL)
		if err != nil {
			logger.WarnCtx(ctx, "failed to parse inline metadata document", zap.Error(err))
			return nil
		}
		return document
	}

	fetchURL := n.rewriter.Rewrite(metadataURL)
	if !uri.IsHTTPURL(fetchURL) {
		return nil
	}

	if err := n.limiter.Wait(ctx, string(domain.SourceMetadata)); err != nil {
		return nil
	}

	body, err := n.httpClient.GetBytes(ctx, fetchURL, nil)
	if err != nil {
		logger.WarnCtx(ctx, "failed to fetch off-chain metadata",
			zap.String("url", fetchURL), zap.Error(err))
		return nil
	}

	var document map[string]any
	if err := json.Unmarshal(body, &document); err != nil {
		logger.WarnCtx(ctx, "off-chain metadata is not a JSON object",
			zap.String("url", fetchURL), zap.Error(err))
		return nil
	}

	return document
}

// artistHints extracts one hint set per reported creator, so collaborations
// resolve to multiple artists
func artistHints(raw *domain.RawNFT) []domain.ArtistHints {
	hints := make([]domain.ArtistHints, 0, len(raw.Creators))
	for _, creator := range raw.Creators {
		hint := domain.ArtistHints{
			Name:       creator.Name,
			Address:    domain.NormalizeAddress(raw.Blockchain, creator.Address),
			Blockchain: raw.Blockchain,
		}
		if hint.Empty() {
			continue
		}
		hints = append(hints, hint)
	}
	return hints
}

// collectionHints extracts the identity hints used to look up or create the
// collection
func collectionHints(raw *domain.RawNFT) domain.CollectionHints {
	return domain.CollectionHints{
		ExternalID:     raw.CollectionExternalID,
		DataSource:     raw.SourceName,
		Blockchain:     raw.Blockchain,
		Title:          raw.CollectionTitle,
		CreatorAddress: domain.NormalizeAddress(raw.Blockchain, raw.FirstCreatorAddress()),
	}
}
