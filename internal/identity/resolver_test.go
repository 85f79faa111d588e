package identity_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/identity"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/store"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Chromie Squiggle", "chromie-squiggle"},
		{"  Fxhash   Drop 2 ", "fxhash-drop"},
		{"Art Blocks: Curated!", "art-blocks-curated"},
		{"already-a-slug", "already-a-slug"},
		{"Release-2024-01", "release"},
		{"42", "42"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identity.Slugify(tt.title), "title %q", tt.title)
	}
}

func TestResolveArtist_LookupOrCreate(t *testing.T) {
	r := identity.NewResolver(store.NewMemory())
	ctx := context.Background()

	hints := domain.ArtistHints{
		Name:       "ciphrd",
		Address:    "tz1Artist",
		Blockchain: domain.BlockchainTezos,
	}

	created, err := r.ResolveArtist(ctx, hints)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "ciphrd", created.Name)

	// Resolving the same identity again finds the same record
	again, err := r.ResolveArtist(ctx, hints)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, created.ID, again.ID)

	// Address alone is enough once the artist exists
	byAddress, err := r.ResolveArtist(ctx, domain.ArtistHints{
		Address:    "tz1Artist",
		Blockchain: domain.BlockchainTezos,
	})
	require.NoError(t, err)
	require.NotNil(t, byAddress)
	assert.Equal(t, created.ID, byAddress.ID)
}

func TestResolveArtist_NoHints(t *testing.T) {
	r := identity.NewResolver(store.NewMemory())

	artist, err := r.ResolveArtist(context.Background(), domain.ArtistHints{})
	require.NoError(t, err)
	assert.Nil(t, artist)
}

func TestResolveArtist_NameSynthesizedFromAddress(t *testing.T) {
	r := identity.NewResolver(store.NewMemory())

	artist, err := r.ResolveArtist(context.Background(), domain.ArtistHints{
		Address:    "0xabcdef0123456789abcdef0123456789abcdef01",
		Blockchain: domain.BlockchainEthereum,
	})
	require.NoError(t, err)
	require.NotNil(t, artist)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", artist.Name)
}

func TestResolveArtist_NameOnlyMergeNeedsAddressFreeSides(t *testing.T) {
	st := store.NewMemory()
	r := identity.NewResolver(st)
	ctx := context.Background()

	first, err := r.ResolveArtist(ctx, domain.ArtistHints{
		Name:       "pak",
		Address:    "0x0000000000000000000000000000000000000001",
		Blockchain: domain.BlockchainEthereum,
	})
	require.NoError(t, err)

	// Same name, different wallet: distinct artist with a disambiguated name
	second, err := r.ResolveArtist(ctx, domain.ArtistHints{
		Name:       "pak",
		Address:    "0x0000000000000000000000000000000000000002",
		Blockchain: domain.BlockchainEthereum,
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Name, second.Name)

	// Name-only hints merge with the existing name match
	third, err := r.ResolveArtist(ctx, domain.ArtistHints{Name: "pak"})
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, first.ID, third.ID)
}

func TestResolveArtist_LinksNewWalletToAddressFreeArtist(t *testing.T) {
	st := store.NewMemory()
	r := identity.NewResolver(st)
	ctx := context.Background()

	first, err := r.ResolveArtist(ctx, domain.ArtistHints{Name: "xcopy"})
	require.NoError(t, err)

	second, err := r.ResolveArtist(ctx, domain.ArtistHints{
		Name:       "xcopy",
		Address:    "0x0000000000000000000000000000000000000003",
		Blockchain: domain.BlockchainEthereum,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	byAddress, err := st.GetArtistByAddress(ctx, domain.BlockchainEthereum, "0x0000000000000000000000000000000000000003")
	require.NoError(t, err)
	require.NotNil(t, byAddress)
	assert.Equal(t, first.ID, byAddress.ID)
}

func TestResolveCollection_LookupOrCreate(t *testing.T) {
	r := identity.NewResolver(store.NewMemory())
	ctx := context.Background()

	hints := domain.CollectionHints{
		ExternalID: "chromie-squiggle",
		DataSource: domain.SourceOpenSea,
		Blockchain: domain.BlockchainEthereum,
		Title:      "Chromie Squiggle",
	}

	created, err := r.ResolveCollection(ctx, hints)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "chromie-squiggle", created.Slug)

	again, err := r.ResolveCollection(ctx, hints)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, created.ID, again.ID)
}

func TestResolveCollection_SlugCollisionGetsSuffix(t *testing.T) {
	r := identity.NewResolver(store.NewMemory())
	ctx := context.Background()

	first, err := r.ResolveCollection(ctx, domain.CollectionHints{
		ExternalID: "drop-eth",
		DataSource: domain.SourceOpenSea,
		Blockchain: domain.BlockchainEthereum,
		Title:      "Genesis Drop",
	})
	require.NoError(t, err)

	// Different marketplace mapping, identical slugified title
	second, err := r.ResolveCollection(ctx, domain.CollectionHints{
		ExternalID: "drop-tezos",
		DataSource: domain.SourceObjkt,
		Blockchain: domain.BlockchainTezos,
		Title:      "Genesis Drop",
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.Contains(t, second.Slug, "genesis-drop-")
}

func TestResolveCollection_NoHints(t *testing.T) {
	r := identity.NewResolver(store.NewMemory())

	collection, err := r.ResolveCollection(context.Background(), domain.CollectionHints{})
	require.NoError(t, err)
	assert.Nil(t, collection)
}

func TestResolveCollection_TitleOnly(t *testing.T) {
	r := identity.NewResolver(store.NewMemory())

	collection, err := r.ResolveCollection(context.Background(), domain.CollectionHints{
		Title:      "Tezos Generative",
		DataSource: domain.SourceTzKT,
		Blockchain: domain.BlockchainTezos,
	})
	require.NoError(t, err)
	require.NotNil(t, collection)
	assert.Equal(t, "tezos-generative", collection.Slug)
	assert.Equal(t, "Tezos Generative", collection.Title)
}
