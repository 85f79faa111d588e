package importer_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/identity"
	"github.com/lumenart/curator/internal/importer"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/media"
	"github.com/lumenart/curator/internal/normalizer"
	"github.com/lumenart/curator/internal/ratelimit"
	"github.com/lumenart/curator/internal/sources"
	"github.com/lumenart/curator/internal/store"
	"github.com/lumenart/curator/internal/store/schema"
	"github.com/lumenart/curator/internal/tracker"
	"github.com/lumenart/curator/internal/uri"
)

const testGateway = "https://gateway.example.com/ipfs/"

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeSource serves canned raw NFTs keyed by contract:token and one wallet
// listing split into single-item cursor pages
type fakeSource struct {
	name     domain.SourceName
	items    map[string]*domain.RawNFT
	errs     map[string]error
	holdings map[string][]domain.SourceRef
}

func (f *fakeSource) Name() domain.SourceName { return f.name }

func (f *fakeSource) FetchRawNFT(_ context.Context, ref domain.SourceRef) (*domain.RawNFT, error) {
	key := ref.ContractAddress + ":" + ref.TokenID
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	raw, ok := f.items[key]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", key, domain.ErrNotFound)
	}
	copied := *raw
	return &copied, nil
}

// ListNFTs returns the owner's holdings one item per page to exercise cursor
// handling
func (f *fakeSource) ListNFTs(_ context.Context, owner string, cursor string) (*sources.Page, error) {
	held := f.holdings[owner]
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: bad cursor %q", domain.ErrMalformedSource, cursor)
		}
		offset = parsed
	}
	if offset >= len(held) {
		return &sources.Page{}, nil
	}
	page := &sources.Page{Items: held[offset : offset+1]}
	if offset+1 < len(held) {
		page.NextCursor = strconv.Itoa(offset + 1)
	}
	return page, nil
}

// fakeMedia echoes the input back as the hosted URL unless overridden
type fakeMedia struct {
	resolve func(ctx context.Context, mediaURI string, opts media.ResolveOptions) (*media.Result, error)
}

func (f *fakeMedia) ResolveMedia(ctx context.Context, mediaURI string, opts media.ResolveOptions) (*media.Result, error) {
	if f.resolve != nil {
		return f.resolve(ctx, mediaURI, opts)
	}
	return &media.Result{URL: mediaURI, MIMEType: "image/png"}, nil
}

type harness struct {
	importer importer.Importer
	store    store.Store
	source   *fakeSource
	media    *fakeMedia
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	httpmock.Reset()

	st := store.NewMemory()
	src := &fakeSource{
		name:     domain.SourceOpenSea,
		items:    map[string]*domain.RawNFT{},
		errs:     map[string]error{},
		holdings: map[string][]domain.SourceRef{},
	}
	md := &fakeMedia{}

	client := adapter.NewHTTPClientWith(&http.Client{Transport: httpmock.DefaultTransport})
	limiter := ratelimit.NewLimiter(nil, ratelimit.ProviderConfig{RequestsPerSecond: 1000, Burst: 1000})
	norm := normalizer.New(client, limiter, uri.NewRewriter(testGateway))

	imp := importer.New(
		importer.Config{WorkerPoolSize: 4},
		sources.NewRegistry(src),
		norm,
		md,
		identity.NewResolver(st),
		st,
		tracker.New(st),
	)

	return &harness{importer: imp, store: st, source: src, media: md}
}

func (h *harness) addItem(raw *domain.RawNFT) domain.SourceRef {
	h.source.items[raw.ContractAddress+":"+raw.TokenID] = raw
	return domain.SourceRef{
		Source:          domain.SourceOpenSea,
		Blockchain:      raw.Blockchain,
		ContractAddress: raw.ContractAddress,
		TokenID:         raw.TokenID,
	}
}

func testRawNFT(tokenID, title string) *domain.RawNFT {
	return &domain.RawNFT{
		SourceName:      domain.SourceOpenSea,
		Blockchain:      domain.BlockchainEthereum,
		Standard:        domain.StandardERC721,
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		TokenID:         tokenID,
		Title:           title,
		Description:     "a generative piece",
		ImageURL:        "https://cdn.example.com/" + tokenID + ".png",
		Creators: []domain.Creator{
			{Name: "studio", Address: "0x0000000000000000000000000000000000000009"},
		},
		CollectionTitle: "Test Collection",
	}
}

func TestImportBatch_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ref := h.addItem(testRawNFT("1", "Piece One"))

	first, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, first.Succeeded, 1)
	require.Empty(t, first.Failed)
	assert.NotEmpty(t, first.BatchID)

	second, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, second.Succeeded, 1)

	// Updated in place, never duplicated
	assert.Equal(t, first.Succeeded[0].ID, second.Succeeded[0].ID)

	artworks, err := h.store.ListArtworks(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, artworks, 1)
	assert.Equal(t, "Piece One", artworks[0].Title)
}

func TestImportBatch_PerItemIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	refs := []domain.SourceRef{
		h.addItem(testRawNFT("1", "One")),
		h.addItem(testRawNFT("2", "Two")),
		h.addItem(&domain.RawNFT{
			SourceName: domain.SourceOpenSea,
			Blockchain: domain.BlockchainEthereum,
			TokenID:    "3",
		}),
		h.addItem(testRawNFT("4", "Four")),
		h.addItem(testRawNFT("5", "Five")),
	}
	// The third item has no contract address and no title
	result, err := h.importer.ImportBatch(ctx, refs)
	require.NoError(t, err)

	assert.Len(t, result.Succeeded, 4)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "3", result.Failed[0].Ref.TokenID)
	assert.Equal(t, schema.ImportStepNormalizing, result.Failed[0].Step)
	assert.Contains(t, result.Failed[0].Error, "malformed")

	// The siblings are persisted regardless of the failure
	artworks, err := h.store.ListArtworks(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, artworks, 4)
}

func TestImportBatch_SharedCreatorResolvesOneArtist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	refs := []domain.SourceRef{
		h.addItem(testRawNFT("1", "One")),
		h.addItem(testRawNFT("2", "Two")),
	}

	result, err := h.importer.ImportBatch(ctx, refs)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)

	first := result.Succeeded[0].ArtistIDs()
	second := result.Succeeded[1].ArtistIDs()
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0], second[0])
}

func TestImportBatch_CollaborationLinksEveryArtist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw := testRawNFT("1", "Duet")
	raw.Creators = []domain.Creator{
		{Name: "aoife", Address: "0x0000000000000000000000000000000000000011"},
		{Name: "mumu", Address: "0x0000000000000000000000000000000000000012"},
	}
	ref := h.addItem(raw)

	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)

	// Each collaborator becomes its own linked artist row
	stored, err := h.store.GetArtworkByID(ctx, result.Succeeded[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Artists, 2)

	names := []string{stored.Artists[0].Name, stored.Artists[1].Name}
	assert.ElementsMatch(t, []string{"aoife", "mumu"}, names)
	assert.NotEqual(t, stored.Artists[0].ID, stored.Artists[1].ID)
}

func TestImportBatch_UntitledPieceScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	httpmock.RegisterResponder(http.MethodGet, testGateway+"Qm123/meta.json",
		httpmock.NewStringResponder(http.StatusOK,
			`{"name": "Untitled Piece", "image": "ipfs://Qm456/img.png"}`))

	ref := h.addItem(&domain.RawNFT{
		SourceName:      domain.SourceOpenSea,
		Blockchain:      domain.BlockchainEthereum,
		ContractAddress: "0xABC",
		TokenID:         "42",
		MetadataURL:     "ipfs://Qm123/meta.json",
	})

	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)

	artwork := result.Succeeded[0]
	assert.Equal(t, "Untitled Piece", artwork.Title)
	assert.Equal(t, testGateway+"Qm456/img.png", artwork.ImageURL)

	// Retrievable by the natural key with the standard still unknown
	found, err := h.store.GetArtworkByToken(ctx, "", "0xABC", "42")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, artwork.ID, found.ID)

	// A second import converges on the same row
	again, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, again.Succeeded, 1)
	assert.Equal(t, artwork.ID, again.Succeeded[0].ID)
}

func TestImportBatch_UntitledDefaultAtPersistence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw := testRawNFT("7", "")
	ref := h.addItem(raw)

	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, importer.UntitledTitle, result.Succeeded[0].Title)
}

func TestImportBatch_MediaFetchFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.media.resolve = func(_ context.Context, mediaURI string, _ media.ResolveOptions) (*media.Result, error) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMediaFetch, mediaURI)
	}

	ref := h.addItem(testRawNFT("1", "One"))
	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, schema.ImportStepResolvingMedia, result.Failed[0].Step)

	record, err := h.store.GetImportRecord(ctx, ref.ContractAddress, ref.TokenID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, schema.ImportStatusFailed, record.Status)
	assert.True(t, record.Retryable)
}

func TestImportBatch_UnsupportedImageClearsFieldOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.media.resolve = func(_ context.Context, mediaURI string, _ media.ResolveOptions) (*media.Result, error) {
		return nil, fmt.Errorf("%w: application/json", domain.ErrUnsupportedMediaType)
	}

	ref := h.addItem(testRawNFT("1", "One"))
	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.Empty(t, result.Succeeded[0].ImageURL)
}

func TestImportBatch_AnimationPrimaryWinsClassification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.media.resolve = func(_ context.Context, mediaURI string, _ media.ResolveOptions) (*media.Result, error) {
		if mediaURI == "https://cdn.example.com/1.mp4" {
			return &media.Result{URL: mediaURI, MIMEType: "video/mp4", AssetID: "asset-animation"}, nil
		}
		return &media.Result{URL: mediaURI, MIMEType: "image/png", AssetID: "asset-image"}, nil
	}

	// With no generator the animation is the primary media, so its
	// classification beats the static image's
	raw := testRawNFT("1", "Motion Piece")
	raw.AnimationURL = "https://cdn.example.com/1.mp4"
	ref := h.addItem(raw)

	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)

	artwork := result.Succeeded[0]
	assert.Equal(t, "video/mp4", artwork.MIMEType)
	assert.Equal(t, "asset-animation", artwork.MediaAssetID)
	assert.Equal(t, "https://cdn.example.com/1.png", artwork.ImageURL)
}

func TestImportBatch_TrackerRecordsSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ref := h.addItem(testRawNFT("1", "One"))
	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)

	record, err := h.store.GetImportRecord(ctx, ref.ContractAddress, ref.TokenID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, schema.ImportStatusSuccess, record.Status)
	assert.Equal(t, result.BatchID, record.BatchID)
	require.NotNil(t, record.ArtworkID)
	assert.Equal(t, result.Succeeded[0].ID, *record.ArtworkID)
}

func TestImportWallet_PagesThroughHoldings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	refs := []domain.SourceRef{
		h.addItem(testRawNFT("1", "One")),
		h.addItem(testRawNFT("2", "Two")),
		h.addItem(testRawNFT("3", "Three")),
	}
	h.source.holdings["0xc0ffee"] = refs

	result, err := h.importer.ImportWallet(ctx, domain.SourceOpenSea, "0xc0ffee")
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 3)
	assert.Empty(t, result.Failed)

	artworks, err := h.store.ListArtworks(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, artworks, 3)
}

func TestImportWallet_EmptyWallet(t *testing.T) {
	h := newHarness(t)

	result, err := h.importer.ImportWallet(context.Background(), domain.SourceOpenSea, "0xnobody")
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, result.Failed)
}
