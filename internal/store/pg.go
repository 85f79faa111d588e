package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/store/schema"
)

const defaultRetryableListLimit = 100

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// AutoMigrate creates or updates the tables for all persisted models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Artist{},
		&schema.ArtistAddress{},
		&schema.Collection{},
		&schema.Artwork{},
		&schema.ImportRecord{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// GetArtworkByUID retrieves an artwork by its deterministic uid hash
func (s *pgStore) GetArtworkByUID(ctx context.Context, uid string) (*schema.Artwork, error) {
	var artwork schema.Artwork
	err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&artwork).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artwork by uid: %w", err)
	}
	return &artwork, nil
}

// GetArtworkByToken retrieves an artwork by its natural on-chain key
func (s *pgStore) GetArtworkByToken(ctx context.Context, standard domain.Standard, contractAddress, tokenID string) (*schema.Artwork, error) {
	var artwork schema.Artwork
	err := s.db.WithContext(ctx).
		Where("standard = ? AND contract_address = ? AND token_id = ?", standard, contractAddress, tokenID).
		First(&artwork).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artwork by token: %w", err)
	}
	return &artwork, nil
}

// GetArtworkByID retrieves an artwork with artist and collection preloaded
func (s *pgStore) GetArtworkByID(ctx context.Context, id int64) (*schema.Artwork, error) {
	var artwork schema.Artwork
	err := s.db.WithContext(ctx).
		Preload("Artists").
		Preload("Artists.Addresses").
		Preload("Collection").
		Where("id = ?", id).
		First(&artwork).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artwork: %w", err)
	}
	return &artwork, nil
}

// ListArtworks pages through artworks, newest first
func (s *pgStore) ListArtworks(ctx context.Context, offset, limit int) ([]*schema.Artwork, error) {
	if limit <= 0 {
		limit = defaultRetryableListLimit
	}

	var artworks []*schema.Artwork
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&artworks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list artworks: %w", err)
	}
	return artworks, nil
}

// SaveImportedArtwork upserts the artwork inside a transaction. The insert is
// guarded by the uid unique constraint with ON CONFLICT DO NOTHING; a zero ID
// afterwards means the row already existed, in which case it is fetched and
// updated in place. Re-imports therefore never duplicate a token.
func (s *pgStore) SaveImportedArtwork(ctx context.Context, artwork *schema.Artwork) (*schema.Artwork, bool, error) {
	created := false
	artists := artwork.Artists

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Artists").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			DoNothing: true,
		}).Clauses(clause.Returning{Columns: []clause.Column{}}).
			Create(artwork).Error; err != nil {
			return fmt.Errorf("failed to create artwork: %w", err)
		}

		if artwork.ID != 0 {
			created = true
		} else {
			// The artwork already existed: fetch it and update in place
			var existing schema.Artwork
			if err := tx.Where("uid = ?", artwork.UID).First(&existing).Error; err != nil {
				return fmt.Errorf("failed to get existing artwork: %w", err)
			}

			if err := tx.Model(&existing).Updates(reimportColumns(artwork)).Error; err != nil {
				return fmt.Errorf("failed to update existing artwork: %w", err)
			}

			*artwork = existing
			artwork.Artists = artists
		}

		// Rewrite the artist links to exactly the resolved set without
		// touching the artist rows themselves
		assoc := tx.Model(artwork).Omit("Artists.*").Association("Artists")
		if len(artists) == 0 {
			if created {
				return nil
			}
			if err := assoc.Clear(); err != nil {
				return fmt.Errorf("failed to clear artwork artists: %w", err)
			}
			return nil
		}
		if err := assoc.Replace(&artists); err != nil {
			return fmt.Errorf("failed to link artwork artists: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return artwork, created, nil
}

// reimportColumns lists the columns a re-import overwrites. The internal ID,
// uid and natural key stay fixed for the lifetime of the row.
func reimportColumns(artwork *schema.Artwork) map[string]any {
	return map[string]any{
		"source":         artwork.Source,
		"title":          artwork.Title,
		"description":    artwork.Description,
		"image_url":      artwork.ImageURL,
		"animation_url":  artwork.AnimationURL,
		"generator_url":  artwork.GeneratorURL,
		"thumbnail_url":  artwork.ThumbnailURL,
		"mime_type":      artwork.MIMEType,
		"width":          artwork.Width,
		"height":         artwork.Height,
		"traits":         artwork.Traits,
		"minted_at":      artwork.MintedAt,
		"supply":         artwork.Supply,
		"media_asset_id": artwork.MediaAssetID,
		"collection_id":  artwork.CollectionID,
		"updated_at":     time.Now(),
	}
}

// UpdateArtworkColumns sparsely updates only the given columns of one artwork
func (s *pgStore) UpdateArtworkColumns(ctx context.Context, id int64, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).
		Model(&schema.Artwork{}).
		Where("id = ?", id).
		Updates(columns).Error; err != nil {
		return fmt.Errorf("failed to update artwork columns: %w", err)
	}
	return nil
}

// ReplaceArtworkArtists rewrites the artwork's artist links to exactly the
// given set. Artist rows themselves are never touched.
func (s *pgStore) ReplaceArtworkArtists(ctx context.Context, artworkID int64, artists []*schema.Artist) error {
	artwork := schema.Artwork{ID: artworkID}
	assoc := s.db.WithContext(ctx).Model(&artwork).Omit("Artists.*").Association("Artists")

	if len(artists) == 0 {
		if err := assoc.Clear(); err != nil {
			return fmt.Errorf("failed to clear artwork artists: %w", err)
		}
		return nil
	}
	if err := assoc.Replace(artists); err != nil {
		return fmt.Errorf("failed to replace artwork artists: %w", err)
	}
	return nil
}

// GetArtistByAddress retrieves the artist owning a wallet address on a chain
func (s *pgStore) GetArtistByAddress(ctx context.Context, blockchain domain.Blockchain, address string) (*schema.Artist, error) {
	var artist schema.Artist
	err := s.db.WithContext(ctx).
		Joins("JOIN artist_addresses ON artist_addresses.artist_id = artists.id").
		Where("artist_addresses.blockchain = ? AND artist_addresses.address = ?", blockchain, address).
		Preload("Addresses").
		First(&artist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artist by address: %w", err)
	}
	return &artist, nil
}

// GetArtistByName retrieves an artist by unique display name
func (s *pgStore) GetArtistByName(ctx context.Context, name string) (*schema.Artist, error) {
	var artist schema.Artist
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Preload("Addresses").
		First(&artist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artist by name: %w", err)
	}
	return &artist, nil
}

// CreateArtist inserts an artist and its addresses guarded by the unique
// constraints. Losing the insert race to a concurrent import surfaces as
// domain.ErrIdentityConflict so the caller can refetch once.
func (s *pgStore) CreateArtist(ctx context.Context, artist *schema.Artist) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(artist).Error
	if err != nil {
		return fmt.Errorf("failed to create artist: %w", err)
	}
	if artist.ID == 0 {
		return fmt.Errorf("artist %q already exists: %w", artist.Name, domain.ErrIdentityConflict)
	}
	return nil
}

// AddArtistAddress links one more wallet to an existing artist, ignoring
// duplicates
func (s *pgStore) AddArtistAddress(ctx context.Context, artistID int64, blockchain domain.Blockchain, address string) error {
	record := schema.ArtistAddress{
		ArtistID:   artistID,
		Blockchain: blockchain,
		Address:    address,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blockchain"}, {Name: "address"}},
			DoNothing: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to add artist address: %w", err)
	}
	return nil
}

// GetCollectionByExternalID retrieves a collection by its marketplace mapping
func (s *pgStore) GetCollectionByExternalID(ctx context.Context, externalID string, source domain.SourceName, blockchain domain.Blockchain) (*schema.Collection, error) {
	var collection schema.Collection
	err := s.db.WithContext(ctx).
		Where("external_id = ? AND data_source = ? AND blockchain = ?", externalID, source, blockchain).
		First(&collection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get collection by external id: %w", err)
	}
	return &collection, nil
}

// GetCollectionBySlug retrieves a collection by slug
func (s *pgStore) GetCollectionBySlug(ctx context.Context, slug string) (*schema.Collection, error) {
	var collection schema.Collection
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&collection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get collection by slug: %w", err)
	}
	return &collection, nil
}

// CreateCollection inserts a collection guarded by the unique constraints.
// Losing the insert race surfaces as domain.ErrIdentityConflict so the caller
// can refetch once.
func (s *pgStore) CreateCollection(ctx context.Context, collection *schema.Collection) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(collection).Error
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if collection.ID == 0 {
		return fmt.Errorf("collection %q already exists: %w", collection.Slug, domain.ErrIdentityConflict)
	}
	return nil
}

// GetImportRecord retrieves the attempt ledger row for one token
func (s *pgStore) GetImportRecord(ctx context.Context, contractAddress, tokenID string) (*schema.ImportRecord, error) {
	var record schema.ImportRecord
	err := s.db.WithContext(ctx).
		Where("contract_address = ? AND token_id = ?", contractAddress, tokenID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get import record: %w", err)
	}
	return &record, nil
}

// GetImportRecordByID retrieves one ledger row by internal ID
func (s *pgStore) GetImportRecordByID(ctx context.Context, id int64) (*schema.ImportRecord, error) {
	var record schema.ImportRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get import record: %w", err)
	}
	return &record, nil
}

// RecordImportAttempt creates or updates the ledger row for one token. The
// attempt count only moves forward; the row itself is never deleted.
func (s *pgStore) RecordImportAttempt(ctx context.Context, input RecordAttemptInput) (*schema.ImportRecord, error) {
	record := schema.ImportRecord{
		ContractAddress:   input.ContractAddress,
		TokenID:           input.TokenID,
		Source:            input.Source,
		Blockchain:        input.Blockchain,
		MetadataURL:       input.MetadataURL,
		Status:            input.Status,
		FailedStep:        input.FailedStep,
		Retryable:         input.Retryable,
		AttemptCount:      1,
		LastAttempt:       time.Now(),
		ErrorMessage:      input.ErrorMessage,
		BatchID:           input.BatchID,
		RawPayload:        input.RawPayload,
		NormalizedPayload: input.NormalizedPayload,
		ArtworkID:         input.ArtworkID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contract_address"}, {Name: "token_id"}},
			DoNothing: true,
		}).Clauses(clause.Returning{Columns: []clause.Column{}}).
			Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create import record: %w", err)
		}

		if record.ID != 0 {
			return nil
		}

		var existing schema.ImportRecord
		if err := tx.Where("contract_address = ? AND token_id = ?", input.ContractAddress, input.TokenID).
			First(&existing).Error; err != nil {
			return fmt.Errorf("failed to get existing import record: %w", err)
		}

		columns := map[string]any{
			"source":        input.Source,
			"blockchain":    input.Blockchain,
			"status":        input.Status,
			"failed_step":   input.FailedStep,
			"retryable":     input.Retryable,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_attempt":  time.Now(),
			"error_message": input.ErrorMessage,
			"batch_id":      input.BatchID,
			"updated_at":    time.Now(),
		}
		if input.RawPayload != nil {
			columns["raw_payload"] = input.RawPayload
		}
		if input.NormalizedPayload != nil {
			columns["normalized_payload"] = input.NormalizedPayload
		}
		if input.ArtworkID != nil {
			columns["artwork_id"] = input.ArtworkID
		}
		if input.MetadataURL != "" {
			columns["metadata_url"] = input.MetadataURL
		}

		if err := tx.Model(&existing).Updates(columns).Error; err != nil {
			return fmt.Errorf("failed to update import record: %w", err)
		}

		return tx.Where("id = ?", existing.ID).First(&record).Error
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// ListRetryableImports returns failed, retryable records below the attempt cap
func (s *pgStore) ListRetryableImports(ctx context.Context, input ListRetryableInput) ([]*schema.ImportRecord, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultRetryableListLimit
	}

	query := s.db.WithContext(ctx).
		Where("status = ? AND retryable = true", schema.ImportStatusFailed)
	if input.MaxAttempts > 0 {
		query = query.Where("attempt_count < ?", input.MaxAttempts)
	}

	var records []*schema.ImportRecord
	err := query.
		Order("last_attempt ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable imports: %w", err)
	}
	return records, nil
}

// MarkImportPending resets a failed record to pending before a retry runs
func (s *pgStore) MarkImportPending(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).
		Model(&schema.ImportRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     schema.ImportStatusPending,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark import pending: %w", err)
	}
	return nil
}
