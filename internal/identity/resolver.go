package identity

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/store"
	"github.com/lumenart/curator/internal/store/schema"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Resolver deduplicates artist and collection identities: every call is an
// idempotent lookup-or-create. Concurrent imports racing on the same
// not-yet-created identity are arbitrated by the store's unique constraints;
// the loser refetches exactly once.
//
//go:generate mockgen -source=resolver.go -destination=../mocks/identity_resolver.go -package=mocks -mock_names=Resolver=MockIdentityResolver
type Resolver interface {
	// ResolveArtist returns the artist for the given hints, creating it when
	// none exists. Returns nil without error when the hints carry no identity.
	ResolveArtist(ctx context.Context, hints domain.ArtistHints) (*schema.Artist, error)

	// ResolveCollection returns the collection for the given hints, creating
	// it when none exists. Returns nil without error when the hints carry no
	// identity.
	ResolveCollection(ctx context.Context, hints domain.CollectionHints) (*schema.Collection, error)
}

type resolver struct {
	store store.Store
	// cache holds recently resolved identities so a batch of tokens from one
	// artist or collection does a single store round trip. Identities never
	// change once created, so a stale entry can only cost an extra lookup.
	cache *gocache.Cache
}

// NewResolver creates an identity resolver backed by the given store
func NewResolver(st store.Store) Resolver {
	return &resolver{
		store: st,
		cache: gocache.New(cacheTTL, cacheCleanup),
	}
}

// ResolveArtist matches in precedence order: wallet address on the hint's
// chain, then exact display name, then create. Name-only merging is allowed
// only when neither side brings a wallet address; two artists that share a
// display name but mint from different wallets stay distinct.
func (r *resolver) ResolveArtist(ctx context.Context, hints domain.ArtistHints) (*schema.Artist, error) {
	if hints.Empty() {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("artist|%s|%s|%s", hints.Blockchain, hints.Address, hints.Name)
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached.(*schema.Artist), nil
	}

	artist, err := r.resolveArtist(ctx, hints)
	if err == nil && artist != nil {
		r.cache.SetDefault(cacheKey, artist)
	}
	return artist, err
}

func (r *resolver) resolveArtist(ctx context.Context, hints domain.ArtistHints) (*schema.Artist, error) {
	if hints.Address != "" {
		artist, err := r.store.GetArtistByAddress(ctx, hints.Blockchain, hints.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if artist != nil {
			return artist, nil
		}
	}

	name := hints.Name
	if name != "" {
		artist, err := r.store.GetArtistByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if artist != nil {
			if hints.Address == "" || len(artist.Addresses) == 0 {
				if hints.Address != "" {
					if err := r.store.AddArtistAddress(ctx, artist.ID, hints.Blockchain, hints.Address); err != nil {
						return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
					}
				}
				return artist, nil
			}
			// Same display name, different wallet: a distinct artist. The
			// created record gets a disambiguated name so the unique
			// constraint holds.
			name = disambiguatedName(name, hints.Address)
		}
	}

	if name == "" {
		// No display name anywhere: the wallet address is the name
		name = hints.Address
	}

	artist := &schema.Artist{Name: name}
	if hints.Address != "" {
		artist.Addresses = []schema.ArtistAddress{{
			Blockchain: hints.Blockchain,
			Address:    hints.Address,
		}}
	}

	if err := r.store.CreateArtist(ctx, artist); err != nil {
		if !errors.Is(err, domain.ErrIdentityConflict) {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		// Lost the race: one refetch round trip
		return r.refetchArtist(ctx, hints, name, err)
	}

	logger.InfoCtx(ctx, "created artist",
		zap.String("name", artist.Name),
		zap.String("address", hints.Address),
	)
	return artist, nil
}

// refetchArtist is the single extra round trip after a create conflict
func (r *resolver) refetchArtist(ctx context.Context, hints domain.ArtistHints, name string, conflict error) (*schema.Artist, error) {
	if hints.Address != "" {
		artist, err := r.store.GetArtistByAddress(ctx, hints.Blockchain, hints.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if artist != nil {
			return artist, nil
		}
	}
	artist, err := r.store.GetArtistByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if artist != nil {
		return artist, nil
	}
	return nil, conflict
}

// ResolveCollection matches in precedence order: the (externalID, source,
// chain) marketplace mapping, then slug, then create with a deterministic
// slug. A slug collision with a different marketplace mapping gets a
// uniqueness suffix.
func (r *resolver) ResolveCollection(ctx context.Context, hints domain.CollectionHints) (*schema.Collection, error) {
	if hints.Empty() {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("collection|%s|%s|%s|%s", hints.ExternalID, hints.DataSource, hints.Blockchain, hints.Title)
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached.(*schema.Collection), nil
	}

	collection, err := r.resolveCollection(ctx, hints)
	if err == nil && collection != nil {
		r.cache.SetDefault(cacheKey, collection)
	}
	return collection, err
}

func (r *resolver) resolveCollection(ctx context.Context, hints domain.CollectionHints) (*schema.Collection, error) {
	if hints.ExternalID != "" {
		collection, err := r.store.GetCollectionByExternalID(ctx, hints.ExternalID, hints.DataSource, hints.Blockchain)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if collection != nil {
			return collection, nil
		}
	}

	slug := Slugify(hints.Title)
	if slug == "" {
		slug = Slugify(hints.ExternalID)
	}
	if slug == "" {
		return nil, nil
	}

	existing, err := r.store.GetCollectionBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if existing != nil {
		if sameMapping(existing, hints) {
			return existing, nil
		}
		// Distinct collection that happens to slugify identically
		slug = suffixedSlug(slug, hints)
	}

	collection := &schema.Collection{
		Slug:           slug,
		Title:          collectionTitle(hints, slug),
		ExternalID:     hints.ExternalID,
		DataSource:     hints.DataSource,
		Blockchain:     hints.Blockchain,
		CreatorAddress: hints.CreatorAddress,
	}

	if err := r.store.CreateCollection(ctx, collection); err != nil {
		if !errors.Is(err, domain.ErrIdentityConflict) {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		// Lost the race: one refetch round trip
		return r.refetchCollection(ctx, hints, slug, err)
	}

	logger.InfoCtx(ctx, "created collection",
		zap.String("slug", collection.Slug),
		zap.String("externalID", hints.ExternalID),
	)
	return collection, nil
}

// refetchCollection is the single extra round trip after a create conflict
func (r *resolver) refetchCollection(ctx context.Context, hints domain.CollectionHints, slug string, conflict error) (*schema.Collection, error) {
	if hints.ExternalID != "" {
		collection, err := r.store.GetCollectionByExternalID(ctx, hints.ExternalID, hints.DataSource, hints.Blockchain)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if collection != nil {
			return collection, nil
		}
	}
	collection, err := r.store.GetCollectionBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if collection != nil {
		return collection, nil
	}
	return nil, conflict
}

// sameMapping reports whether an existing collection is the one the hints
// describe, not merely a slug twin
func sameMapping(collection *schema.Collection, hints domain.CollectionHints) bool {
	if hints.ExternalID == "" || collection.ExternalID == "" {
		return true
	}
	return collection.ExternalID == hints.ExternalID &&
		collection.DataSource == hints.DataSource &&
		collection.Blockchain == hints.Blockchain
}

// suffixedSlug appends a short deterministic suffix derived from the
// marketplace mapping so slug twins stay unique without a counter scan
func suffixedSlug(slug string, hints domain.CollectionHints) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", hints.ExternalID, hints.DataSource, hints.Blockchain)))
	return fmt.Sprintf("%s-%x", slug, sum[:3])
}

// collectionTitle prefers the display title, falling back to the slug
func collectionTitle(hints domain.CollectionHints, slug string) string {
	if hints.Title != "" {
		return hints.Title
	}
	return slug
}

// disambiguatedName appends a wallet fragment to a taken display name
func disambiguatedName(name, address string) string {
	fragment := address
	if len(fragment) > 8 {
		fragment = fragment[:8]
	}
	return fmt.Sprintf("%s (%s)", name, fragment)
}
