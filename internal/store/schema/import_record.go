package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/lumenart/curator/internal/domain"
)

// ImportStatus is the terminal-or-not state of one tracked token import
type ImportStatus string

const (
	ImportStatusPending ImportStatus = "pending"
	ImportStatusSuccess ImportStatus = "success"
	ImportStatusFailed  ImportStatus = "failed"
)

// ImportStep names the pipeline step an import was in when it last changed
// state
type ImportStep string

const (
	ImportStepPending           ImportStep = "pending"
	ImportStepFetching          ImportStep = "fetching"
	ImportStepNormalizing       ImportStep = "normalizing"
	ImportStepResolvingMedia    ImportStep = "resolving-media"
	ImportStepResolvingIdentity ImportStep = "resolving-identity"
	ImportStepPersisting        ImportStep = "persisting"
)

// ImportRecord is the attempt ledger: one row per distinct (contract, token)
// pair ever attempted, regardless of whether an Artwork came out of it.
// Created on the first fetch attempt, updated on every retry, never silently
// deleted.
type ImportRecord struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`

	// ContractAddress is stored normalized (Ethereum addresses lowercased)
	ContractAddress string `gorm:"column:contract_address;not null;type:text;uniqueIndex:idx_import_records_contract_token,priority:1"`
	TokenID         string `gorm:"column:token_id;not null;type:text;uniqueIndex:idx_import_records_contract_token,priority:2"`

	Source     domain.SourceName `gorm:"column:source;not null;type:text"`
	Blockchain domain.Blockchain `gorm:"column:blockchain;not null;type:text"`
	// MetadataURL is kept so metadata-source imports can be re-run; the URL is
	// the only way to reach such tokens again
	MetadataURL string `gorm:"column:metadata_url;type:text"`

	Status ImportStatus `gorm:"column:status;not null;type:text;index"`
	// FailedStep names the pipeline step a failed import died in; empty on
	// success
	FailedStep ImportStep `gorm:"column:failed_step;type:text"`
	// Retryable records whether the last error class is worth another sweep
	Retryable bool `gorm:"column:retryable;not null;default:false"`

	AttemptCount int       `gorm:"column:attempt_count;not null;default:0"`
	LastAttempt  time.Time `gorm:"column:last_attempt;not null;default:now()"`
	ErrorMessage string    `gorm:"column:error_message;type:text"`

	// BatchID is the ULID of the batch the last attempt belonged to
	BatchID string `gorm:"column:batch_id;type:text;index"`

	// RawPayload and NormalizedPayload are replay snapshots of the last attempt
	RawPayload        datatypes.JSON `gorm:"column:raw_payload;type:jsonb"`
	NormalizedPayload datatypes.JSON `gorm:"column:normalized_payload;type:jsonb"`

	// ArtworkID links to the artwork once one exists
	ArtworkID *int64 `gorm:"column:artwork_id;index"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the ImportRecord model
func (ImportRecord) TableName() string {
	return "import_records"
}

// SourceRef rebuilds the reference a retry of this record should import
func (r *ImportRecord) SourceRef() domain.SourceRef {
	return domain.SourceRef{
		Source:          r.Source,
		Blockchain:      r.Blockchain,
		ContractAddress: r.ContractAddress,
		TokenID:         r.TokenID,
		MetadataURL:     r.MetadataURL,
	}
}
