package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/store/schema"
)

// memoryStore is an in-memory Store used by tests and local development. It
// enforces the same unique constraints as the PostgreSQL store, including the
// identity-conflict semantics of the create paths.
type memoryStore struct {
	mu sync.Mutex

	nextID      int64
	artworks    map[int64]*schema.Artwork
	artists     map[int64]*schema.Artist
	collections map[int64]*schema.Collection
	imports     map[int64]*schema.ImportRecord
	// artworkArtists mirrors the artwork_artists join table
	artworkArtists map[int64][]int64
}

// NewMemory creates an empty in-memory store
func NewMemory() Store {
	return &memoryStore{
		artworks:       make(map[int64]*schema.Artwork),
		artists:        make(map[int64]*schema.Artist),
		collections:    make(map[int64]*schema.Collection),
		imports:        make(map[int64]*schema.ImportRecord),
		artworkArtists: make(map[int64][]int64),
	}
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) GetArtworkByUID(_ context.Context, uid string) (*schema.Artwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, artwork := range s.artworks {
		if artwork.UID == uid {
			copied := *artwork
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetArtworkByToken(_ context.Context, standard domain.Standard, contractAddress, tokenID string) (*schema.Artwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, artwork := range s.artworks {
		if artwork.Standard == standard && artwork.ContractAddress == contractAddress && artwork.TokenID == tokenID {
			copied := *artwork
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetArtworkByID(_ context.Context, id int64) (*schema.Artwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artwork, ok := s.artworks[id]
	if !ok {
		return nil, nil
	}
	copied := *artwork
	for _, artistID := range s.artworkArtists[id] {
		if artist, ok := s.artists[artistID]; ok {
			artistCopy := *artist
			artistCopy.Addresses = append([]schema.ArtistAddress(nil), artist.Addresses...)
			copied.Artists = append(copied.Artists, artistCopy)
		}
	}
	if artwork.CollectionID != nil {
		if collection, ok := s.collections[*artwork.CollectionID]; ok {
			collectionCopy := *collection
			copied.Collection = &collectionCopy
		}
	}
	return &copied, nil
}

func (s *memoryStore) ListArtworks(_ context.Context, offset, limit int) ([]*schema.Artwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	artworks := make([]*schema.Artwork, 0, len(s.artworks))
	for _, artwork := range s.artworks {
		copied := *artwork
		artworks = append(artworks, &copied)
	}
	sort.Slice(artworks, func(i, j int) bool {
		return artworks[i].CreatedAt.After(artworks[j].CreatedAt)
	})

	if offset >= len(artworks) {
		return []*schema.Artwork{}, nil
	}
	artworks = artworks[offset:]
	if limit > 0 && limit < len(artworks) {
		artworks = artworks[:limit]
	}
	return artworks, nil
}

func (s *memoryStore) SaveImportedArtwork(_ context.Context, artwork *schema.Artwork) (*schema.Artwork, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.artworks {
		sameUID := existing.UID == artwork.UID
		sameToken := existing.Standard == artwork.Standard &&
			existing.ContractAddress == artwork.ContractAddress &&
			existing.TokenID == artwork.TokenID
		if sameUID || sameToken {
			// update in place, keeping identity columns
			artwork.ID = existing.ID
			artwork.UID = existing.UID
			artwork.CreatedAt = existing.CreatedAt
			artwork.UpdatedAt = time.Now()
			copied := *artwork
			s.artworks[existing.ID] = &copied
			s.replaceArtworkArtistsLocked(artwork.ID, artwork.Artists)
			return artwork, false, nil
		}
	}

	artwork.ID = s.id()
	now := time.Now()
	artwork.CreatedAt = now
	artwork.UpdatedAt = now
	copied := *artwork
	s.artworks[artwork.ID] = &copied
	s.replaceArtworkArtistsLocked(artwork.ID, artwork.Artists)
	return artwork, true, nil
}

func (s *memoryStore) replaceArtworkArtistsLocked(artworkID int64, artists []schema.Artist) {
	ids := make([]int64, 0, len(artists))
	for _, artist := range artists {
		ids = append(ids, artist.ID)
	}
	s.artworkArtists[artworkID] = ids
}

func (s *memoryStore) ReplaceArtworkArtists(_ context.Context, artworkID int64, artists []*schema.Artist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artworks[artworkID]; !ok {
		return fmt.Errorf("artwork %d not found", artworkID)
	}
	ids := make([]int64, 0, len(artists))
	for _, artist := range artists {
		ids = append(ids, artist.ID)
	}
	s.artworkArtists[artworkID] = ids
	return nil
}

func (s *memoryStore) UpdateArtworkColumns(_ context.Context, id int64, columns map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artwork, ok := s.artworks[id]
	if !ok {
		return fmt.Errorf("artwork %d not found", id)
	}

	for column, value := range columns {
		switch column {
		case "title":
			artwork.Title, _ = value.(string)
		case "description":
			artwork.Description, _ = value.(string)
		case "image_url":
			artwork.ImageURL, _ = value.(string)
		case "animation_url":
			artwork.AnimationURL, _ = value.(string)
		case "generator_url":
			artwork.GeneratorURL, _ = value.(string)
		case "thumbnail_url":
			artwork.ThumbnailURL, _ = value.(string)
		case "mime_type":
			artwork.MIMEType, _ = value.(string)
		case "media_asset_id":
			artwork.MediaAssetID, _ = value.(string)
		case "standard":
			artwork.Standard, _ = value.(domain.Standard)
		case "width":
			if width, ok := value.(int); ok {
				artwork.Width = &width
			}
		case "height":
			if height, ok := value.(int); ok {
				artwork.Height = &height
			}
		case "traits":
			artwork.Traits, _ = value.(datatypes.JSON)
		case "minted_at":
			if mintedAt, ok := value.(time.Time); ok {
				artwork.MintedAt = &mintedAt
			}
		case "supply":
			artwork.Supply, _ = value.(int64)
		case "collection_id":
			if collectionID, ok := value.(int64); ok {
				artwork.CollectionID = &collectionID
			}
		case "updated_at":
			// ignored, set below
		}
	}
	artwork.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) GetArtistByAddress(_ context.Context, blockchain domain.Blockchain, address string) (*schema.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, artist := range s.artists {
		for _, linked := range artist.Addresses {
			if linked.Blockchain == blockchain && linked.Address == address {
				copied := *artist
				return &copied, nil
			}
		}
	}
	return nil, nil
}

func (s *memoryStore) GetArtistByName(_ context.Context, name string) (*schema.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, artist := range s.artists {
		if artist.Name == name {
			copied := *artist
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CreateArtist(_ context.Context, artist *schema.Artist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.artists {
		if existing.Name == artist.Name {
			return fmt.Errorf("artist %q already exists: %w", artist.Name, domain.ErrIdentityConflict)
		}
		for _, linked := range existing.Addresses {
			for _, incoming := range artist.Addresses {
				if linked.Blockchain == incoming.Blockchain && linked.Address == incoming.Address {
					return fmt.Errorf("artist address %s already exists: %w", incoming.Address, domain.ErrIdentityConflict)
				}
			}
		}
	}

	artist.ID = s.id()
	for i := range artist.Addresses {
		artist.Addresses[i].ID = s.id()
		artist.Addresses[i].ArtistID = artist.ID
	}
	copied := *artist
	copied.Addresses = append([]schema.ArtistAddress(nil), artist.Addresses...)
	s.artists[artist.ID] = &copied
	return nil
}

func (s *memoryStore) AddArtistAddress(_ context.Context, artistID int64, blockchain domain.Blockchain, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artist, ok := s.artists[artistID]
	if !ok {
		return fmt.Errorf("artist %d not found", artistID)
	}
	for _, linked := range artist.Addresses {
		if linked.Blockchain == blockchain && linked.Address == address {
			return nil
		}
	}
	artist.Addresses = append(artist.Addresses, schema.ArtistAddress{
		ID:         s.id(),
		ArtistID:   artistID,
		Blockchain: blockchain,
		Address:    address,
	})
	return nil
}

func (s *memoryStore) GetCollectionByExternalID(_ context.Context, externalID string, source domain.SourceName, blockchain domain.Blockchain) (*schema.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, collection := range s.collections {
		if collection.ExternalID == externalID && collection.DataSource == source && collection.Blockchain == blockchain {
			copied := *collection
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetCollectionBySlug(_ context.Context, slug string) (*schema.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, collection := range s.collections {
		if collection.Slug == slug {
			copied := *collection
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CreateCollection(_ context.Context, collection *schema.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.collections {
		if existing.Slug == collection.Slug {
			return fmt.Errorf("collection %q already exists: %w", collection.Slug, domain.ErrIdentityConflict)
		}
		if collection.ExternalID != "" &&
			existing.ExternalID == collection.ExternalID &&
			existing.DataSource == collection.DataSource &&
			existing.Blockchain == collection.Blockchain {
			return fmt.Errorf("collection mapping %q already exists: %w", collection.ExternalID, domain.ErrIdentityConflict)
		}
	}

	collection.ID = s.id()
	copied := *collection
	s.collections[collection.ID] = &copied
	return nil
}

func (s *memoryStore) GetImportRecord(_ context.Context, contractAddress, tokenID string) (*schema.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.findImportLocked(contractAddress, tokenID)
	if record == nil {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *memoryStore) GetImportRecordByID(_ context.Context, id int64) (*schema.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.imports[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *memoryStore) findImportLocked(contractAddress, tokenID string) *schema.ImportRecord {
	key := strings.ToLower(contractAddress)
	for _, record := range s.imports {
		if strings.ToLower(record.ContractAddress) == key && record.TokenID == tokenID {
			return record
		}
	}
	return nil
}

func (s *memoryStore) RecordImportAttempt(_ context.Context, input RecordAttemptInput) (*schema.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	record := s.findImportLocked(input.ContractAddress, input.TokenID)
	if record == nil {
		record = &schema.ImportRecord{
			ID:              s.id(),
			ContractAddress: input.ContractAddress,
			TokenID:         input.TokenID,
			CreatedAt:       now,
		}
		s.imports[record.ID] = record
	}

	record.Source = input.Source
	record.Blockchain = input.Blockchain
	record.Status = input.Status
	record.FailedStep = input.FailedStep
	record.Retryable = input.Retryable
	record.AttemptCount++
	record.LastAttempt = now
	record.ErrorMessage = input.ErrorMessage
	record.BatchID = input.BatchID
	record.UpdatedAt = now
	if input.RawPayload != nil {
		record.RawPayload = input.RawPayload
	}
	if input.NormalizedPayload != nil {
		record.NormalizedPayload = input.NormalizedPayload
	}
	if input.ArtworkID != nil {
		record.ArtworkID = input.ArtworkID
	}
	if input.MetadataURL != "" {
		record.MetadataURL = input.MetadataURL
	}

	copied := *record
	return &copied, nil
}

func (s *memoryStore) ListRetryableImports(_ context.Context, input ListRetryableInput) ([]*schema.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*schema.ImportRecord
	for _, record := range s.imports {
		if record.Status != schema.ImportStatusFailed || !record.Retryable {
			continue
		}
		if input.MaxAttempts > 0 && record.AttemptCount >= input.MaxAttempts {
			continue
		}
		copied := *record
		records = append(records, &copied)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastAttempt.Before(records[j].LastAttempt)
	})

	limit := input.Limit
	if limit <= 0 {
		limit = defaultRetryableListLimit
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *memoryStore) MarkImportPending(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.imports[id]
	if !ok {
		return fmt.Errorf("import record %d not found", id)
	}
	record.Status = schema.ImportStatusPending
	record.UpdatedAt = time.Now()
	return nil
}
