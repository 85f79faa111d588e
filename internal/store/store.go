package store

import (
	"context"

	"gorm.io/datatypes"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/store/schema"
)

// RecordAttemptInput carries one import attempt outcome into the ledger
type RecordAttemptInput struct {
	ContractAddress string
	TokenID         string
	Source          domain.SourceName
	Blockchain      domain.Blockchain
	// MetadataURL is persisted so metadata-source records can be re-run
	MetadataURL string

	Status     schema.ImportStatus
	FailedStep schema.ImportStep
	Retryable  bool

	ErrorMessage string
	BatchID      string

	RawPayload        datatypes.JSON
	NormalizedPayload datatypes.JSON

	ArtworkID *int64
}

// ListRetryableInput filters the failed imports worth another sweep
type ListRetryableInput struct {
	// MaxAttempts excludes records at or over this attempt count; 0 means no cap
	MaxAttempts int
	// Limit caps the result size; 0 falls back to a server-side default
	Limit int
}

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// GetArtworkByUID retrieves an artwork by its deterministic uid hash.
	// Returns nil without error when no artwork matches.
	GetArtworkByUID(ctx context.Context, uid string) (*schema.Artwork, error)
	// GetArtworkByToken retrieves an artwork by its natural on-chain key.
	// Returns nil without error when no artwork matches.
	GetArtworkByToken(ctx context.Context, standard domain.Standard, contractAddress, tokenID string) (*schema.Artwork, error)
	// GetArtworkByID retrieves an artwork by its internal ID, with artist and
	// collection preloaded. Returns nil without error when no artwork matches.
	GetArtworkByID(ctx context.Context, id int64) (*schema.Artwork, error)
	// ListArtworks pages through artworks, newest first
	ListArtworks(ctx context.Context, offset, limit int) ([]*schema.Artwork, error)
	// SaveImportedArtwork upserts the artwork under both unique keys inside a
	// transaction. Reports whether a new row was created; on conflict the
	// existing row is updated in place.
	SaveImportedArtwork(ctx context.Context, artwork *schema.Artwork) (*schema.Artwork, bool, error)
	// UpdateArtworkColumns sparsely updates only the given columns of one artwork
	UpdateArtworkColumns(ctx context.Context, id int64, columns map[string]any) error
	// ReplaceArtworkArtists rewrites the artwork's artist links to exactly the
	// given set. Artist rows themselves are never touched.
	ReplaceArtworkArtists(ctx context.Context, artworkID int64, artists []*schema.Artist) error

	// GetArtistByAddress retrieves the artist owning a wallet address on a chain.
	// Returns nil without error when no artist matches.
	GetArtistByAddress(ctx context.Context, blockchain domain.Blockchain, address string) (*schema.Artist, error)
	// GetArtistByName retrieves an artist by unique display name.
	// Returns nil without error when no artist matches.
	GetArtistByName(ctx context.Context, name string) (*schema.Artist, error)
	// CreateArtist inserts an artist and its addresses, guarded by the unique
	// constraints. A concurrent insert of the same identity surfaces as
	// domain.ErrIdentityConflict so the caller can refetch once.
	CreateArtist(ctx context.Context, artist *schema.Artist) error
	// AddArtistAddress links one more wallet to an existing artist, ignoring
	// duplicates
	AddArtistAddress(ctx context.Context, artistID int64, blockchain domain.Blockchain, address string) error

	// GetCollectionByExternalID retrieves a collection by its marketplace
	// mapping. Returns nil without error when no collection matches.
	GetCollectionByExternalID(ctx context.Context, externalID string, source domain.SourceName, blockchain domain.Blockchain) (*schema.Collection, error)
	// GetCollectionBySlug retrieves a collection by slug.
	// Returns nil without error when no collection matches.
	GetCollectionBySlug(ctx context.Context, slug string) (*schema.Collection, error)
	// CreateCollection inserts a collection guarded by the unique constraints.
	// A concurrent insert of the same identity surfaces as
	// domain.ErrIdentityConflict so the caller can refetch once.
	CreateCollection(ctx context.Context, collection *schema.Collection) error

	// GetImportRecord retrieves the attempt ledger row for one token.
	// Returns nil without error when the token was never attempted.
	GetImportRecord(ctx context.Context, contractAddress, tokenID string) (*schema.ImportRecord, error)
	// GetImportRecordByID retrieves one ledger row by internal ID.
	// Returns nil without error when no record matches.
	GetImportRecordByID(ctx context.Context, id int64) (*schema.ImportRecord, error)
	// RecordImportAttempt creates or updates the ledger row for one token,
	// bumping its attempt count
	RecordImportAttempt(ctx context.Context, input RecordAttemptInput) (*schema.ImportRecord, error)
	// ListRetryableImports returns failed, retryable records below the attempt cap
	ListRetryableImports(ctx context.Context, input ListRetryableInput) ([]*schema.ImportRecord, error)
	// MarkImportPending resets a failed record to pending before a retry runs
	MarkImportPending(ctx context.Context, id int64) error
}
