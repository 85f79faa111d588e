package schema

import (
	"time"

	"github.com/lumenart/curator/internal/domain"
)

// Collection groups artworks the way the upstream marketplace groups them.
// The (external_id, data_source, blockchain) triple maps a marketplace
// collection to exactly one row; slug is the stable human-readable key used
// by the public gallery.
type Collection struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Slug is derived deterministically from the title, with a numeric suffix
	// on collision
	Slug  string `gorm:"column:slug;not null;uniqueIndex;type:text"`
	Title string `gorm:"column:title;not null;type:text"`

	// ExternalID is the marketplace's own collection identifier; empty for
	// sources that have no collection concept, which the partial index ignores
	ExternalID string            `gorm:"column:external_id;type:text;uniqueIndex:idx_collections_external,priority:1,where:external_id <> ''"`
	DataSource domain.SourceName `gorm:"column:data_source;type:text;uniqueIndex:idx_collections_external,priority:2"`
	Blockchain domain.Blockchain `gorm:"column:blockchain;type:text;uniqueIndex:idx_collections_external,priority:3"`

	// CreatorAddress is the collection deployer/creator wallet when known
	CreatorAddress string `gorm:"column:creator_address;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Collection model
func (Collection) TableName() string {
	return "collections"
}
