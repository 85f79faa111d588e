package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/identity"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/media"
	"github.com/lumenart/curator/internal/normalizer"
	"github.com/lumenart/curator/internal/sources"
	"github.com/lumenart/curator/internal/store"
	"github.com/lumenart/curator/internal/store/schema"
	"github.com/lumenart/curator/internal/tracker"
)

const (
	// DefaultWorkerPoolSize bounds the per-batch fan-out
	DefaultWorkerPoolSize = 10

	// UntitledTitle is filled in at the persistence boundary when no source
	// had a name for the artwork
	UntitledTitle = "Untitled"

	// maxWalletPages caps cursor pagination for one wallet import so a
	// misbehaving upstream cursor cannot loop forever
	maxWalletPages = 50
)

// Config holds importer configuration
type Config struct {
	// WorkerPoolSize is the number of items processed concurrently per batch
	WorkerPoolSize int
}

// ItemFailure is one failed item of a batch, carrying the step it died in
// and the reason string
type ItemFailure struct {
	Ref   domain.SourceRef  `json:"ref"`
	Step  schema.ImportStep `json:"step"`
	Error string            `json:"error"`
}

// BatchResult is the outcome of one import batch
type BatchResult struct {
	BatchID   string            `json:"batch_id"`
	Succeeded []*schema.Artwork `json:"succeeded"`
	Failed    []ItemFailure     `json:"failed"`
}

// RefetchResult reports the outcome of a refetch: the updated artwork and
// exactly which fields the fresh upstream payload changed
type RefetchResult struct {
	Artwork       *schema.Artwork `json:"artwork"`
	ChangedFields []string        `json:"changed_fields"`
}

// Importer drives the per-item import pipeline:
// fetch, normalize, resolve media, resolve identity, persist.
// Items in a batch are processed concurrently and in isolation: one item's
// terminal failure is recorded and never aborts its siblings.
//
//go:generate mockgen -source=importer.go -destination=../mocks/importer.go -package=mocks -mock_names=Importer=MockImporter
type Importer interface {
	// ImportBatch runs the pipeline over every ref and reports per-item
	// outcomes. The batch completes when all items reached a terminal state;
	// it is never short-circuited by the first failure.
	ImportBatch(ctx context.Context, refs []domain.SourceRef) (*BatchResult, error)

	// ImportWallet pages through every NFT an owner holds on a source that
	// supports owner-scoped listing and imports them as one batch.
	ImportWallet(ctx context.Context, source domain.SourceName, owner string) (*BatchResult, error)

	// RefetchArtwork re-runs the pipeline against an existing artwork's source
	// identity and applies a sparse merge: only fields with a new, non-empty
	// value overwrite the stored value. Fields the fresh fetch did not return
	// are left untouched.
	RefetchArtwork(ctx context.Context, artworkID int64) (*RefetchResult, error)
}

type importer struct {
	config     Config
	registry   *sources.Registry
	normalizer *normalizer.Normalizer
	media      media.Resolver
	identity   identity.Resolver
	store      store.Store
	tracker    tracker.Tracker
}

// New creates an importer over the given collaborators
func New(
	config Config,
	registry *sources.Registry,
	norm *normalizer.Normalizer,
	mediaResolver media.Resolver,
	identityResolver identity.Resolver,
	st store.Store,
	tr tracker.Tracker,
) Importer {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = DefaultWorkerPoolSize
	}
	return &importer{
		config:     config,
		registry:   registry,
		normalizer: norm,
		media:      mediaResolver,
		identity:   identityResolver,
		store:      st,
		tracker:    tr,
	}
}

// itemRun carries one item's pipeline state to its terminal step
type itemRun struct {
	ref        domain.SourceRef
	raw        *domain.RawNFT
	fields     *domain.NormalizedFields
	assetID    string
	artists    []*schema.Artist
	collection *schema.Collection
	artwork    *schema.Artwork
	step       schema.ImportStep
	err        error
}

// ImportBatch fans the refs out over a bounded worker pool and joins all
// per-item outcomes
func (i *importer) ImportBatch(ctx context.Context, refs []domain.SourceRef) (*BatchResult, error) {
	batchID := ulid.MustNewDefault(time.Now()).String()

	result := &BatchResult{
		BatchID:   batchID,
		Succeeded: []*schema.Artwork{},
		Failed:    []ItemFailure{},
	}
	if len(refs) == 0 {
		return result, nil
	}

	logger.InfoCtx(ctx, "starting import batch",
		zap.String("batch_id", batchID),
		zap.Int("items", len(refs)),
		zap.Int("workers", i.config.WorkerPoolSize),
	)

	pool := pond.NewPool(
		i.config.WorkerPoolSize,
		pond.WithQueueSize(len(refs)),
		pond.WithContext(ctx),
	)

	var mu sync.Mutex
	for _, ref := range refs {
		pool.Submit(func() {
			run := i.runItem(ctx, ref)
			i.recordAttempt(ctx, run, batchID)

			mu.Lock()
			defer mu.Unlock()
			if run.err != nil {
				result.Failed = append(result.Failed, ItemFailure{
					Ref:   run.ref,
					Step:  run.step,
					Error: run.err.Error(),
				})
				return
			}
			result.Succeeded = append(result.Succeeded, run.artwork)
		})
	}
	pool.StopAndWait()

	logger.InfoCtx(ctx, "import batch finished",
		zap.String("batch_id", batchID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// ImportWallet collects the owner's holdings page by page, then hands the
// whole listing to ImportBatch
func (i *importer) ImportWallet(ctx context.Context, source domain.SourceName, owner string) (*BatchResult, error) {
	adapter, err := i.registry.Get(source)
	if err != nil {
		return nil, err
	}
	lister, ok := adapter.(sources.Lister)
	if !ok {
		return nil, fmt.Errorf("%w: source %q does not support wallet listing", domain.ErrMalformedSource, source)
	}

	var refs []domain.SourceRef
	cursor := ""
	for range maxWalletPages {
		page, err := lister.ListNFTs(ctx, owner, cursor)
		if err != nil {
			return nil, err
		}
		refs = append(refs, page.Items...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	logger.InfoCtx(ctx, "importing wallet holdings",
		zap.String("source", string(source)),
		zap.String("owner", owner),
		zap.Int("items", len(refs)),
	)

	return i.ImportBatch(ctx, refs)
}

// runItem advances one item through the pipeline steps in order. It stops at
// the first failing step; run.step always names the step the item ended in.
func (i *importer) runItem(ctx context.Context, ref domain.SourceRef) *itemRun {
	run := &itemRun{ref: ref, step: schema.ImportStepPending}

	run.step = schema.ImportStepFetching
	adapter, err := i.registry.Get(ref.Source)
	if err != nil {
		run.err = err
		return run
	}
	run.raw, err = adapter.FetchRawNFT(ctx, ref)
	if err != nil {
		run.err = err
		return run
	}

	run.step = schema.ImportStepNormalizing
	offchain := i.normalizer.FetchOffchainMetadata(ctx, run.raw.MetadataURL)
	run.fields, err = i.normalizer.Normalize(run.raw, offchain)
	if err != nil {
		run.err = err
		return run
	}

	run.step = schema.ImportStepResolvingMedia
	run.assetID, err = i.resolveMedia(ctx, run.fields)
	if err != nil {
		run.err = err
		return run
	}

	run.step = schema.ImportStepResolvingIdentity
	run.artists, run.collection, err = i.resolveIdentity(ctx, run.fields)
	if err != nil {
		run.err = err
		return run
	}

	run.step = schema.ImportStepPersisting
	run.artwork, run.err = i.persist(ctx, ref.Source, run.fields, run.assetID, run.artists, run.collection)
	return run
}

// resolveMedia downloads, classifies and re-hosts the item's media, updating
// the fields in place. The image is the primary media: a retryable fetch
// failure on it fails the item, while an unsupported type only clears the
// field. Animation failures never block the item. Generator URLs are live
// code, not downloadable assets, and are kept as-is.
func (i *importer) resolveMedia(ctx context.Context, fields *domain.NormalizedFields) (string, error) {
	opts := media.ResolveOptions{
		ContractAddress: fields.ContractAddress,
		TokenID:         fields.TokenID,
	}

	var assetID string

	if fields.ImageURL != "" {
		result, err := i.media.ResolveMedia(ctx, fields.ImageURL, opts)
		switch {
		case err == nil:
			fields.ImageURL = result.URL
			fields.MIMEType = result.MIMEType
			fields.Dimensions = result.Dimensions
			assetID = result.AssetID
		case errors.Is(err, domain.ErrUnsupportedMediaType):
			logger.WarnCtx(ctx, "image media unsupported, clearing field",
				zap.String("url", fields.ImageURL), zap.Error(err))
			fields.ImageURL = ""
		default:
			return "", err
		}
	}

	if fields.AnimationURL != "" {
		// When the animation is the primary media its classification wins
		// over the static image's
		animationPrimary := fields.PrimaryMediaURL() == fields.AnimationURL

		result, err := i.media.ResolveMedia(ctx, fields.AnimationURL, opts)
		if err != nil {
			// A failed animation resolve never blocks the item: keep the
			// normalized URL and move on
			logger.WarnCtx(ctx, "animation media resolution failed, keeping source url",
				zap.String("url", fields.AnimationURL), zap.Error(err))
		} else {
			fields.AnimationURL = result.URL
			if assetID == "" || (animationPrimary && result.AssetID != "") {
				assetID = result.AssetID
			}
			if fields.MIMEType == "" || (animationPrimary && result.MIMEType != "") {
				fields.MIMEType = result.MIMEType
			}
		}
	}

	return assetID, nil
}

// resolveIdentity looks up or creates every credited artist and the collection
// for the item. Each creator hint resolves on its own; duplicates converging on
// the same artist row are linked once.
func (i *importer) resolveIdentity(ctx context.Context, fields *domain.NormalizedFields) ([]*schema.Artist, *schema.Collection, error) {
	var artists []*schema.Artist
	seen := make(map[int64]bool)
	for _, hints := range fields.Artists {
		artist, err := i.identity.ResolveArtist(ctx, hints)
		if err != nil {
			return nil, nil, err
		}
		if artist == nil || seen[artist.ID] {
			continue
		}
		seen[artist.ID] = true
		artists = append(artists, artist)
	}

	collection, err := i.identity.ResolveCollection(ctx, fields.CollectionHints)
	if err != nil {
		return nil, nil, err
	}
	return artists, collection, nil
}

// persist writes the artwork under both unique keys. This is the only step
// that writes artwork rows, and the only place the "Untitled" default is
// applied.
func (i *importer) persist(
	ctx context.Context,
	source domain.SourceName,
	fields *domain.NormalizedFields,
	assetID string,
	artists []*schema.Artist,
	collection *schema.Collection,
) (*schema.Artwork, error) {
	artwork, err := buildArtwork(source, fields, assetID, artists, collection)
	if err != nil {
		return nil, err
	}

	saved, created, err := i.store.SaveImportedArtwork(ctx, artwork)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "persisted artwork",
		zap.String("uid", saved.UID),
		zap.String("title", saved.Title),
		zap.Bool("created", created),
	)
	return saved, nil
}

// buildArtwork maps normalized fields onto the storage model
func buildArtwork(
	source domain.SourceName,
	fields *domain.NormalizedFields,
	assetID string,
	artists []*schema.Artist,
	collection *schema.Collection,
) (*schema.Artwork, error) {
	uid, err := domain.ArtworkUID(source, fields.Standard, fields.ContractAddress, fields.TokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	title := fields.Title
	if title == "" {
		title = UntitledTitle
	}

	supply := fields.Supply
	if supply <= 0 {
		supply = 1
	}

	artwork := &schema.Artwork{
		UID:             uid,
		Blockchain:      fields.Blockchain,
		Standard:        fields.Standard,
		ContractAddress: fields.ContractAddress,
		TokenID:         fields.TokenID,
		Source:          source,

		Title:       title,
		Description: fields.Description,

		ImageURL:     fields.ImageURL,
		AnimationURL: fields.AnimationURL,
		GeneratorURL: fields.GeneratorURL,
		ThumbnailURL: fields.ThumbnailURL,
		MIMEType:     fields.MIMEType,

		MintedAt: fields.MintedAt,
		Supply:   supply,

		MediaAssetID: assetID,
	}

	if fields.Dimensions.Valid() {
		artwork.Width = &fields.Dimensions.Width
		artwork.Height = &fields.Dimensions.Height
	}

	if len(fields.Traits) > 0 {
		traits, err := json.Marshal(fields.Traits)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal traits: %v", domain.ErrPersistence, err)
		}
		artwork.Traits = datatypes.JSON(traits)
	}

	for _, artist := range artists {
		artwork.Artists = append(artwork.Artists, *artist)
	}
	if collection != nil {
		artwork.CollectionID = &collection.ID
	}

	return artwork, nil
}

// recordAttempt ledgers the item's terminal state. Ledger failures are logged
// and never override the item's own outcome.
func (i *importer) recordAttempt(ctx context.Context, run *itemRun, batchID string) {
	attempt := tracker.Attempt{
		Ref:     run.ref,
		BatchID: batchID,
		Step:    run.step,
		Err:     run.err,
	}
	if run.raw != nil {
		attempt.RawPayload = run.raw.RawPayload
	}
	if run.fields != nil {
		if payload, err := json.Marshal(run.fields); err == nil {
			attempt.NormalizedPayload = payload
		}
	}
	if run.artwork != nil {
		attempt.ArtworkID = &run.artwork.ID
	}

	if _, err := i.tracker.RecordAttempt(ctx, attempt); err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("contract_address", run.ref.ContractAddress),
			zap.String("token_id", run.ref.TokenID),
		)
	}
}
