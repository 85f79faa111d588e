package dto

import (
	"encoding/json"
	"time"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/store/schema"
)

// ArtworkResponse represents one normalized artwork
type ArtworkResponse struct {
	ID              int64             `json:"id"`
	UID             string            `json:"uid"`
	Blockchain      domain.Blockchain `json:"blockchain"`
	Standard        domain.Standard   `json:"standard,omitempty"`
	ContractAddress string            `json:"contract_address"`
	TokenID         string            `json:"token_id"`
	Source          domain.SourceName `json:"source"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	ImageURL     string `json:"image_url,omitempty"`
	AnimationURL string `json:"animation_url,omitempty"`
	GeneratorURL string `json:"generator_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`

	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	Traits json.RawMessage `json:"traits,omitempty"`

	MintedAt *time.Time `json:"minted_at,omitempty"`
	Supply   int64      `json:"supply"`

	// Artists lists every credited creator; collaborations carry one entry
	// per collaborator
	Artists    []*ArtistResponse   `json:"artists,omitempty"`
	Collection *CollectionResponse `json:"collection,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArtistResponse represents an artwork's resolved artist
type ArtistResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CollectionResponse represents an artwork's resolved collection
type CollectionResponse struct {
	ID    int64  `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// ImportRecordResponse represents one attempt-ledger row
type ImportRecordResponse struct {
	ID              int64               `json:"id"`
	ContractAddress string              `json:"contract_address"`
	TokenID         string              `json:"token_id"`
	Source          domain.SourceName   `json:"source"`
	Blockchain      domain.Blockchain   `json:"blockchain"`
	MetadataURL     string              `json:"metadata_url,omitempty"`
	Status          schema.ImportStatus `json:"status"`
	FailedStep      schema.ImportStep   `json:"failed_step,omitempty"`
	Retryable       bool                `json:"retryable"`
	AttemptCount    int                 `json:"attempt_count"`
	LastAttempt     time.Time           `json:"last_attempt"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	BatchID         string              `json:"batch_id,omitempty"`
	ArtworkID       *int64              `json:"artwork_id,omitempty"`
}

// FromArtwork maps the storage model to its response shape
func FromArtwork(artwork *schema.Artwork) *ArtworkResponse {
	response := &ArtworkResponse{
		ID:              artwork.ID,
		UID:             artwork.UID,
		Blockchain:      artwork.Blockchain,
		Standard:        artwork.Standard,
		ContractAddress: artwork.ContractAddress,
		TokenID:         artwork.TokenID,
		Source:          artwork.Source,

		Title:       artwork.Title,
		Description: artwork.Description,

		ImageURL:     artwork.ImageURL,
		AnimationURL: artwork.AnimationURL,
		GeneratorURL: artwork.GeneratorURL,
		ThumbnailURL: artwork.ThumbnailURL,
		MIMEType:     artwork.MIMEType,

		Width:  artwork.Width,
		Height: artwork.Height,

		MintedAt: artwork.MintedAt,
		Supply:   artwork.Supply,

		CreatedAt: artwork.CreatedAt,
		UpdatedAt: artwork.UpdatedAt,
	}

	if len(artwork.Traits) > 0 {
		response.Traits = json.RawMessage(artwork.Traits)
	}
	for _, artist := range artwork.Artists {
		response.Artists = append(response.Artists, &ArtistResponse{ID: artist.ID, Name: artist.Name})
	}
	if artwork.Collection != nil {
		response.Collection = &CollectionResponse{
			ID:    artwork.Collection.ID,
			Slug:  artwork.Collection.Slug,
			Title: artwork.Collection.Title,
		}
	}

	return response
}

// FromArtworks maps a page of artworks
func FromArtworks(artworks []*schema.Artwork) []*ArtworkResponse {
	responses := make([]*ArtworkResponse, 0, len(artworks))
	for _, artwork := range artworks {
		responses = append(responses, FromArtwork(artwork))
	}
	return responses
}

// FromImportRecord maps the ledger row to its response shape
func FromImportRecord(record *schema.ImportRecord) *ImportRecordResponse {
	return &ImportRecordResponse{
		ID:              record.ID,
		ContractAddress: record.ContractAddress,
		TokenID:         record.TokenID,
		Source:          record.Source,
		Blockchain:      record.Blockchain,
		MetadataURL:     record.MetadataURL,
		Status:          record.Status,
		FailedStep:      record.FailedStep,
		Retryable:       record.Retryable,
		AttemptCount:    record.AttemptCount,
		LastAttempt:     record.LastAttempt,
		ErrorMessage:    record.ErrorMessage,
		BatchID:         record.BatchID,
		ArtworkID:       record.ArtworkID,
	}
}

// FromImportRecords maps a list of ledger rows
func FromImportRecords(records []*schema.ImportRecord) []*ImportRecordResponse {
	responses := make([]*ImportRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, FromImportRecord(record))
	}
	return responses
}
