package schema

import (
	"time"

	"github.com/lumenart/curator/internal/domain"
)

// Artist is a deduplicated creator identity. Name is the weak unique key;
// wallet addresses are the strong keys and live in artist_addresses so one
// artist can mint from several wallets across chains.
type Artist struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Name is unique; synthesized from the wallet address when the source has
	// no display name
	Name string `gorm:"column:name;not null;uniqueIndex;type:text"`
	Bio  string `gorm:"column:bio;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`

	// Associations
	Addresses []ArtistAddress `gorm:"foreignKey:ArtistID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Artist model
func (Artist) TableName() string {
	return "artists"
}

// ArtistAddress links a wallet address on one chain to an artist. The
// (blockchain, address) pair is unique: it is the strong identity key that
// concurrent imports race on.
type ArtistAddress struct {
	// ID is the internal database primary key
	ID       int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ArtistID int64 `gorm:"column:artist_id;not null;index"`

	Blockchain domain.Blockchain `gorm:"column:blockchain;not null;type:text;uniqueIndex:idx_artist_addresses_chain_address,priority:1"`
	// Address is stored normalized (Ethereum addresses lowercased)
	Address string `gorm:"column:address;not null;type:text;uniqueIndex:idx_artist_addresses_chain_address,priority:2"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the ArtistAddress model
func (ArtistAddress) TableName() string {
	return "artist_addresses"
}
