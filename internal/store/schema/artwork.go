package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/lumenart/curator/internal/domain"
)

// Artwork is the canonical normalized record for one on-chain token.
// Two unique keys guard against duplicate imports racing each other: the
// natural (standard, contract_address, token_id) tuple and the derived uid
// hash. An artwork is created on first successful import and updated in place
// on re-import, never duplicated.
type Artwork struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UID is the deterministic hash of (source, standard, contract, token)
	UID string `gorm:"column:uid;not null;uniqueIndex;type:text"`

	Blockchain domain.Blockchain `gorm:"column:blockchain;not null;type:text"`
	Standard   domain.Standard   `gorm:"column:standard;not null;type:text;uniqueIndex:idx_artworks_standard_contract_token,priority:1"`
	// ContractAddress is stored normalized (Ethereum addresses lowercased)
	ContractAddress string `gorm:"column:contract_address;not null;type:text;uniqueIndex:idx_artworks_standard_contract_token,priority:2"`
	// TokenID is a string to support very large token numbers
	TokenID string `gorm:"column:token_id;not null;type:text;uniqueIndex:idx_artworks_standard_contract_token,priority:3"`
	// Source records which adapter produced the current record state
	Source domain.SourceName `gorm:"column:source;not null;type:text"`

	// Title is never empty: the persistence boundary fills "Untitled" when no
	// source had a name
	Title       string `gorm:"column:title;not null;type:text"`
	Description string `gorm:"column:description;type:text"`

	ImageURL     string `gorm:"column:image_url;type:text"`
	AnimationURL string `gorm:"column:animation_url;type:text"`
	GeneratorURL string `gorm:"column:generator_url;type:text"`
	ThumbnailURL string `gorm:"column:thumbnail_url;type:text"`
	MIMEType     string `gorm:"column:mime_type;type:text"`

	// Width and Height are nil when no valid dimensions could be read
	Width  *int `gorm:"column:width"`
	Height *int `gorm:"column:height"`

	// Traits holds the key-value attribute list as JSON
	Traits datatypes.JSON `gorm:"column:traits;type:jsonb"`

	MintedAt *time.Time `gorm:"column:minted_at"`
	Supply   int64      `gorm:"column:supply;not null;default:1"`

	// MediaAssetID is the hosting provider's asset identifier for the primary media
	MediaAssetID string `gorm:"column:media_asset_id;type:text"`

	CollectionID *int64 `gorm:"column:collection_id;index"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`

	// Artists links every credited creator through the artwork_artists join
	// table; collaborations keep one row per collaborator
	Artists    []Artist    `gorm:"many2many:artwork_artists;"`
	Collection *Collection `gorm:"foreignKey:CollectionID"`
}

// ArtistIDs returns the linked artist IDs in association order
func (a *Artwork) ArtistIDs() []int64 {
	ids := make([]int64, 0, len(a.Artists))
	for _, artist := range a.Artists {
		ids = append(ids, artist.ID)
	}
	return ids
}

// TableName specifies the table name for the Artwork model
func (Artwork) TableName() string {
	return "artworks"
}
