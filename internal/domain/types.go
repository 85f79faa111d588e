package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Blockchain represents the blockchain name
type Blockchain string

const (
	BlockchainEthereum Blockchain = "ethereum"
	BlockchainTezos    Blockchain = "tezos"
)

// IsValidBlockchain checks if a blockchain is supported
func IsValidBlockchain(b Blockchain) bool {
	return b == BlockchainEthereum || b == BlockchainTezos
}

// Standard represents the token contract standard
type Standard string

const (
	StandardERC721  Standard = "erc721"
	StandardERC1155 Standard = "erc1155"
	StandardFA2     Standard = "fa2"
)

// SourceName identifies the upstream data source an NFT was fetched from
type SourceName string

const (
	SourceOpenSea  SourceName = "opensea"
	SourceObjkt    SourceName = "objkt"
	SourceTzKT     SourceName = "tzkt"
	SourceMetadata SourceName = "metadata"
)

// IsValidSource checks if a source name is one of the registered adapters
func IsValidSource(s SourceName) bool {
	switch s {
	case SourceOpenSea, SourceObjkt, SourceTzKT, SourceMetadata:
		return true
	}
	return false
}

// SourceRef identifies a single NFT at a specific upstream source.
// It is the input unit of a batch import.
type SourceRef struct {
	Source          SourceName `json:"source"`
	Blockchain      Blockchain `json:"blockchain"`
	ContractAddress string     `json:"contract_address"`
	TokenID         string     `json:"token_id"`
	// MetadataURL is only used by the raw metadata source adapter
	MetadataURL string `json:"metadata_url,omitempty"`
}

// Key returns the tracker dedup key for this ref
func (r SourceRef) Key() string {
	return fmt.Sprintf("%s:%s", strings.ToLower(r.ContractAddress), r.TokenID)
}

// Trait is a single key-value attribute attached to an artwork
type Trait struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// RawNFT is the common source-tagged payload produced by every source adapter.
// It is ephemeral and exists only during a single import call; raw untyped
// upstream JSON never crosses the adapter boundary.
type RawNFT struct {
	SourceName      SourceName
	Blockchain      Blockchain
	Standard        Standard
	ContractAddress string
	TokenID         string

	Title        string
	Description  string
	ImageURL     string
	AnimationURL string
	GeneratorURL string
	ThumbnailURL string
	MetadataURL  string
	MIMEType     string

	Traits []Trait

	// Creators lists every creator the source reports, in source order.
	// Collaborations keep one entry per collaborator.
	Creators []Creator

	CollectionExternalID string
	CollectionTitle      string

	MintedAt *time.Time
	Supply   int64

	// RawPayload is the upstream response, kept verbatim for replay snapshots
	RawPayload json.RawMessage
}

// SourceID returns the source-scoped identifier contract+token+chain
func (r *RawNFT) SourceID() string {
	return fmt.Sprintf("%s/%s/%s", r.Blockchain, strings.ToLower(r.ContractAddress), r.TokenID)
}

// FirstCreatorAddress returns the first creator wallet the source reported,
// or empty when none carries one
func (r *RawNFT) FirstCreatorAddress() string {
	for _, creator := range r.Creators {
		if creator.Address != "" {
			return creator.Address
		}
	}
	return ""
}

// Creator is one creator identity as reported by a source. Either field may
// be empty, never both.
type Creator struct {
	Name    string
	Address string
}

// Dimensions holds pixel dimensions of a decoded image.
// A pair is valid only when both sides are positive.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive
func (d *Dimensions) Valid() bool {
	return d != nil && d.Width > 0 && d.Height > 0
}

// NormalizedFields is the canonical attribute set produced by the normalizer.
// Title may be empty here; the "Untitled" default is applied once at the
// persistence boundary, never inside the normalizer.
type NormalizedFields struct {
	Blockchain      Blockchain
	Standard        Standard
	ContractAddress string
	TokenID         string

	Title        string
	Description  string
	ImageURL     string
	AnimationURL string
	GeneratorURL string
	ThumbnailURL string
	MIMEType     string
	Dimensions   *Dimensions

	Traits []Trait

	MintedAt *time.Time
	Supply   int64

	// Artists carries one hint set per creator; collaborations resolve to
	// multiple linked artists, never a merged identity
	Artists         []ArtistHints
	CollectionHints CollectionHints
}

// PrimaryMediaURL returns the renderable media reference for the artwork.
// Generator and animation URLs take priority over static images: an artwork
// with a generator URL is never treated as a static image.
func (n *NormalizedFields) PrimaryMediaURL() string {
	if n.GeneratorURL != "" {
		return n.GeneratorURL
	}
	if n.AnimationURL != "" {
		return n.AnimationURL
	}
	return n.ImageURL
}

// ArtistHints carries the identity hints used to look up or create an artist
type ArtistHints struct {
	Name       string
	Address    string
	Blockchain Blockchain
}

// Empty reports whether no usable identity hint is present
func (h ArtistHints) Empty() bool {
	return h.Name == "" && h.Address == ""
}

// CollectionHints carries the identity hints used to look up or create a collection
type CollectionHints struct {
	ExternalID     string
	DataSource     SourceName
	Blockchain     Blockchain
	Title          string
	CreatorAddress string
}

// Empty reports whether no usable identity hint is present
func (h CollectionHints) Empty() bool {
	return h.ExternalID == "" && h.Title == ""
}

var positiveNumericRegex = regexp.MustCompile(`^[0-9]+$`)

// IsNumeric checks if a string is a valid non-negative numeric value
func IsNumeric(s string) bool {
	return positiveNumericRegex.MatchString(s)
}

// IsEthereumAddress checks if a string is a valid Ethereum address
func IsEthereumAddress(s string) bool {
	return common.IsHexAddress(s)
}

// IsTezosAddress checks if a string is a valid Tezos address
func IsTezosAddress(s string) bool {
	for _, prefix := range []string{"tz1", "tz2", "tz3", "tz4", "KT1"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// NormalizeAddress lowercases Ethereum hex addresses so lookups converge on a
// single representation. Tezos addresses are case-sensitive and pass through.
func NormalizeAddress(blockchain Blockchain, address string) string {
	if blockchain == BlockchainEthereum && IsEthereumAddress(address) {
		return strings.ToLower(common.HexToAddress(address).Hex())
	}
	return address
}

// StringPtr converts a string to a pointer to a string
func StringPtr(s string) *string {
	return &s
}

// SafeString returns a safe string from a pointer to a string
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringNilOrEmpty checks if a pointer to a string is nil or empty
func StringNilOrEmpty(s *string) bool {
	return s == nil || *s == ""
}
