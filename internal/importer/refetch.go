package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/store/schema"
	"github.com/lumenart/curator/internal/tracker"
)

// RefetchArtwork re-runs fetch, normalize, media and identity resolution
// against the artwork's original source identity, then applies a sparse merge:
// only columns for which the fresh fetch produced a new, non-empty value are
// written. A blank upstream field never clobbers a stored value, which
// protects manually curated overrides.
func (i *importer) RefetchArtwork(ctx context.Context, artworkID int64) (*RefetchResult, error) {
	artwork, err := i.store.GetArtworkByID(ctx, artworkID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if artwork == nil {
		return nil, fmt.Errorf("artwork %d: %w", artworkID, domain.ErrNotFound)
	}

	ref := domain.SourceRef{
		Source:          artwork.Source,
		Blockchain:      artwork.Blockchain,
		ContractAddress: artwork.ContractAddress,
		TokenID:         artwork.TokenID,
	}
	// Metadata-source artworks are only reachable through their metadata URL,
	// which lives on the ledger row
	if record, err := i.store.GetImportRecord(ctx, artwork.ContractAddress, artwork.TokenID); err == nil && record != nil {
		ref.MetadataURL = record.MetadataURL
	}

	run := i.refetchRun(ctx, ref, artwork)
	i.recordRefetchAttempt(ctx, run, artworkID)
	if run.err != nil {
		return nil, run.err
	}

	columns := sparseMergeColumns(artwork, run)
	changed := make([]string, 0, len(columns)+1)
	for column := range columns {
		changed = append(changed, column)
	}

	artistsChanged := len(run.artists) > 0 && !sameArtistSet(artwork.Artists, run.artists)
	if artistsChanged {
		changed = append(changed, "artists")
	}
	sort.Strings(changed)

	if artistsChanged {
		if err := i.store.ReplaceArtworkArtists(ctx, artwork.ID, run.artists); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}
	if len(columns) > 0 || artistsChanged {
		columns["updated_at"] = time.Now()
		if err := i.store.UpdateArtworkColumns(ctx, artwork.ID, columns); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}

	updated, err := i.store.GetArtworkByID(ctx, artwork.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	logger.InfoCtx(ctx, "refetched artwork",
		zap.Int64("artwork_id", artwork.ID),
		zap.Strings("changed_fields", changed),
	)

	return &RefetchResult{Artwork: updated, ChangedFields: changed}, nil
}

// refetchRun is the single-item pipeline without the persisting step: the
// sparse merge replaces the full upsert
func (i *importer) refetchRun(ctx context.Context, ref domain.SourceRef, artwork *schema.Artwork) *itemRun {
	run := &itemRun{ref: ref, artwork: artwork}

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
	run.artists, run.collection, run.err = i.resolveIdentity(ctx, run.fields)
	return run
}

// sameArtistSet reports whether the stored artist links already match the
// freshly resolved set, ignoring order
func sameArtistSet(stored []schema.Artist, resolved []*schema.Artist) bool {
	if len(stored) != len(resolved) {
		return false
	}
	ids := make(map[int64]bool, len(stored))
	for _, artist := range stored {
		ids[artist.ID] = true
	}
	for _, artist := range resolved {
		if !ids[artist.ID] {
			return false
		}
	}
	return true
}

// sparseMergeColumns computes the column updates a refetch is allowed to
// apply: new, non-empty values that differ from what is stored
func sparseMergeColumns(artwork *schema.Artwork, run *itemRun) map[string]any {
	fields := run.fields
	columns := map[string]any{}

	setString := func(column, fresh, stored string) {
		if fresh != "" && fresh != stored {
			columns[column] = fresh
		}
	}

	setString("title", fields.Title, artwork.Title)
	setString("description", fields.Description, artwork.Description)
	setString("image_url", fields.ImageURL, artwork.ImageURL)
	setString("animation_url", fields.AnimationURL, artwork.AnimationURL)
	setString("generator_url", fields.GeneratorURL, artwork.GeneratorURL)
	setString("thumbnail_url", fields.ThumbnailURL, artwork.ThumbnailURL)
	setString("mime_type", fields.MIMEType, artwork.MIMEType)
	setString("media_asset_id", run.assetID, artwork.MediaAssetID)

	if fields.Standard != "" && fields.Standard != artwork.Standard {
		columns["standard"] = fields.Standard
	}

	if fields.Dimensions.Valid() {
		if artwork.Width == nil || *artwork.Width != fields.Dimensions.Width {
			columns["width"] = fields.Dimensions.Width
		}
		if artwork.Height == nil || *artwork.Height != fields.Dimensions.Height {
			columns["height"] = fields.Dimensions.Height
		}
	}

	if len(fields.Traits) > 0 {
		if traits, err := json.Marshal(fields.Traits); err == nil && string(traits) != string(artwork.Traits) {
			columns["traits"] = datatypes.JSON(traits)
		}
	}

	if fields.MintedAt != nil && (artwork.MintedAt == nil || !artwork.MintedAt.Equal(*fields.MintedAt)) {
		columns["minted_at"] = *fields.MintedAt
	}
	if fields.Supply > 0 && fields.Supply != artwork.Supply {
		columns["supply"] = fields.Supply
	}

	if run.collection != nil && (artwork.CollectionID == nil || *artwork.CollectionID != run.collection.ID) {
		columns["collection_id"] = run.collection.ID
	}

	return columns
}

// recordRefetchAttempt ledgers the refetch outcome on the token's existing row
func (i *importer) recordRefetchAttempt(ctx context.Context, run *itemRun, artworkID int64) {
	attempt := tracker.Attempt{
		Ref:       run.ref,
		Step:      run.step,
		Err:       run.err,
		ArtworkID: &artworkID,
	}
	if run.raw != nil {
		attempt.RawPayload = run.raw.RawPayload
	}
	if run.fields != nil {
		if payload, err := json.Marshal(run.fields); err == nil {
			attempt.NormalizedPayload = payload
		}
	}

	if _, err := i.tracker.RecordAttempt(ctx, attempt); err != nil {
		logger.ErrorCtx(ctx, err, zap.Int64("artwork_id", artworkID))
	}
}
