package sweeper_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

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
	"github.com/lumenart/curator/internal/sweeper"
	"github.com/lumenart/curator/internal/tracker"
	"github.com/lumenart/curator/internal/uri"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeSource struct {
	items map[string]*domain.RawNFT
	errs  map[string]error
}

func (f *fakeSource) Name() domain.SourceName { return domain.SourceOpenSea }

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

type fakeMedia struct{}

func (fakeMedia) ResolveMedia(_ context.Context, mediaURI string, _ media.ResolveOptions) (*media.Result, error) {
	return &media.Result{URL: mediaURI, MIMEType: "image/png"}, nil
}

type sweepCycler interface {
	RunSweepCycle(ctx context.Context) error
}

type sweepHarness struct {
	sweeper  sweeper.Sweeper
	importer importer.Importer
	tracker  tracker.Tracker
	store    store.Store
	source   *fakeSource
}

func newSweepHarness(t *testing.T, cfg *sweeper.RetrySweeperConfig) *sweepHarness {
	t.Helper()
	httpmock.Reset()

	st := store.NewMemory()
	src := &fakeSource{items: map[string]*domain.RawNFT{}, errs: map[string]error{}}

	client := adapter.NewHTTPClientWith(&http.Client{Transport: httpmock.DefaultTransport})
	limiter := ratelimit.NewLimiter(nil, ratelimit.ProviderConfig{RequestsPerSecond: 1000, Burst: 1000})
	norm := normalizer.New(client, limiter, uri.NewRewriter("https://gateway.example.com/ipfs/"))

	tr := tracker.New(st)
	imp := importer.New(
		importer.Config{WorkerPoolSize: 2},
		sources.NewRegistry(src),
		norm,
		fakeMedia{},
		identity.NewResolver(st),
		st,
		tr,
	)

	return &sweepHarness{
		sweeper:  sweeper.NewRetrySweeper(cfg, tr, imp, adapter.NewClock()),
		importer: imp,
		tracker:  tr,
		store:    st,
		source:   src,
	}
}

func (h *sweepHarness) runCycle(ctx context.Context) error {
	return h.sweeper.(sweepCycler).RunSweepCycle(ctx)
}

func testRaw(tokenID string) *domain.RawNFT {
	return &domain.RawNFT{
		SourceName:      domain.SourceOpenSea,
		Blockchain:      domain.BlockchainEthereum,
		Standard:        domain.StandardERC721,
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		TokenID:         tokenID,
		Title:           "Piece " + tokenID,
	}
}

func TestRunSweepCycle_RetriesTransientFailures(t *testing.T) {
	h := newSweepHarness(t, &sweeper.RetrySweeperConfig{
		Interval:    time.Minute,
		MaxAttempts: 5,
		BatchSize:   10,
	})
	ctx := context.Background()

	raw := testRaw("1")
	key := raw.ContractAddress + ":" + raw.TokenID
	ref := domain.SourceRef{
		Source:          domain.SourceOpenSea,
		Blockchain:      raw.Blockchain,
		ContractAddress: raw.ContractAddress,
		TokenID:         raw.TokenID,
	}

	// First import fails with a transient upstream outage
	h.source.errs[key] = fmt.Errorf("%w: opensea 503", domain.ErrSourceUnavailable)
	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)

	// The outage resolves before the sweep
	delete(h.source.errs, key)
	h.source.items[key] = raw

	require.NoError(t, h.runCycle(ctx))

	record, err := h.store.GetImportRecord(ctx, raw.ContractAddress, raw.TokenID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, schema.ImportStatusSuccess, record.Status)
	assert.Equal(t, 2, record.AttemptCount)

	artworks, err := h.store.ListArtworks(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, artworks, 1)
}

func TestRunSweepCycle_LeavesTerminalFailuresAlone(t *testing.T) {
	h := newSweepHarness(t, &sweeper.RetrySweeperConfig{
		Interval:    time.Minute,
		MaxAttempts: 5,
		BatchSize:   10,
	})
	ctx := context.Background()

	// A token the source does not know: terminal NotFound
	ref := domain.SourceRef{
		Source:          domain.SourceOpenSea,
		Blockchain:      domain.BlockchainEthereum,
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		TokenID:         "404",
	}
	result, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)

	require.NoError(t, h.runCycle(ctx))

	record, err := h.store.GetImportRecord(ctx, ref.ContractAddress, ref.TokenID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, schema.ImportStatusFailed, record.Status)
	assert.Equal(t, 1, record.AttemptCount)
}

func TestRunSweepCycle_RespectsAttemptCap(t *testing.T) {
	h := newSweepHarness(t, &sweeper.RetrySweeperConfig{
		Interval:    time.Minute,
		MaxAttempts: 2,
		BatchSize:   10,
	})
	ctx := context.Background()

	raw := testRaw("1")
	key := raw.ContractAddress + ":" + raw.TokenID
	ref := domain.SourceRef{
		Source:          domain.SourceOpenSea,
		Blockchain:      raw.Blockchain,
		ContractAddress: raw.ContractAddress,
		TokenID:         raw.TokenID,
	}

	// The outage persists across both allowed attempts
	h.source.errs[key] = fmt.Errorf("%w: opensea 503", domain.ErrSourceUnavailable)
	_, err := h.importer.ImportBatch(ctx, []domain.SourceRef{ref})
	require.NoError(t, err)

	require.NoError(t, h.runCycle(ctx))

	record, err := h.store.GetImportRecord(ctx, raw.ContractAddress, raw.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 2, record.AttemptCount)

	// At the cap now: the next cycle must not pick it up
	require.NoError(t, h.runCycle(ctx))

	record, err = h.store.GetImportRecord(ctx, raw.ContractAddress, raw.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 2, record.AttemptCount)
}

func TestRunSweepCycle_RestoresMetadataURL(t *testing.T) {
	httpmock.Reset()
	ctx := context.Background()

	st := store.NewMemory()
	client := adapter.NewHTTPClientWith(&http.Client{Transport: httpmock.DefaultTransport})
	limiter := ratelimit.NewLimiter(nil, ratelimit.ProviderConfig{RequestsPerSecond: 1000, Burst: 1000})
	rewriter := uri.NewRewriter("https://gateway.example.com/ipfs/")
	norm := normalizer.New(client, limiter, rewriter)

	tr := tracker.New(st)
	imp := importer.New(
		importer.Config{WorkerPoolSize: 2},
		sources.NewRegistry(sources.NewMetadataAdapter(client, limiter, rewriter)),
		norm,
		fakeMedia{},
		identity.NewResolver(st),
		st,
		tr,
	)
	sw := sweeper.NewRetrySweeper(&sweeper.RetrySweeperConfig{
		Interval:    time.Minute,
		MaxAttempts: 5,
		BatchSize:   10,
	}, tr, imp, adapter.NewClock())

	// A metadata-URL import failed on an upstream outage
	ref := domain.SourceRef{
		Source:          domain.SourceMetadata,
		Blockchain:      domain.BlockchainEthereum,
		ContractAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
		TokenID:         "9",
		MetadataURL:     "ipfs://Qm123/meta.json",
	}
	record, err := tr.RecordAttempt(ctx, tracker.Attempt{
		Ref:  ref,
		Step: schema.ImportStepFetching,
		Err:  fmt.Errorf("%w: gateway timeout", domain.ErrSourceUnavailable),
	})
	require.NoError(t, err)

	// The ledger row keeps the URL; a metadata-source token has no other handle
	assert.Equal(t, "ipfs://Qm123/meta.json", record.MetadataURL)

	httpmock.RegisterResponder(http.MethodGet,
		"https://gateway.example.com/ipfs/Qm123/meta.json",
		httpmock.NewStringResponder(200, `{"name": "Hidden Gem", "image": "ipfs://QmImage/a.png"}`))

	require.NoError(t, sw.(sweepCycler).RunSweepCycle(ctx))

	record, err = st.GetImportRecord(ctx, ref.ContractAddress, ref.TokenID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, schema.ImportStatusSuccess, record.Status)

	artworks, err := st.ListArtworks(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, artworks, 1)
	assert.Equal(t, "Hidden Gem", artworks[0].Title)
}

func TestStartAndStop(t *testing.T) {
	h := newSweepHarness(t, &sweeper.RetrySweeperConfig{
		Interval:    10 * time.Millisecond,
		MaxAttempts: 5,
		BatchSize:   10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- h.sweeper.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, h.sweeper.Stop(stopCtx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop in time")
	}
}
