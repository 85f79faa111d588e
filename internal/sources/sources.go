package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/ratelimit"
	"github.com/lumenart/curator/internal/retry"
)

// Page is one cursor page of source refs returned by a listing call
type Page struct {
	Items      []domain.SourceRef
	NextCursor string
}

// Adapter converts a source-specific payload into the common RawNFT shape.
// Adapters are pure fetchers: they never write to storage.
//
//go:generate mockgen -source=sources.go -destination=../mocks/source_adapter.go -package=mocks -mock_names=Adapter=MockSourceAdapter
type Adapter interface {
	// Name returns the source name this adapter serves
	Name() domain.SourceName

	// FetchRawNFT fetches a single NFT and normalizes it into a RawNFT.
	// A missing item maps to domain.ErrNotFound; upstream outages and
	// timeouts map to domain.ErrSourceUnavailable.
	FetchRawNFT(ctx context.Context, ref domain.SourceRef) (*domain.RawNFT, error)
}

// Lister is implemented by adapters whose upstream exposes owner-scoped,
// cursor-paginated listings
type Lister interface {
	// ListNFTs returns one page of NFTs held by owner. An empty cursor
	// requests the first page; an empty NextCursor means the listing is done.
	ListNFTs(ctx context.Context, owner string, cursor string) (*Page, error)
}

// Registry maps source names to their adapters
type Registry struct {
	adapters map[domain.SourceName]Adapter
}

// NewRegistry creates a registry over the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[domain.SourceName]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter registered for the source, or ErrNotFound
func (r *Registry) Get(source domain.SourceName) (Adapter, error) {
	a, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q: %w", source, domain.ErrNotFound)
	}
	return a, nil
}

var fetchRetryConfig = retry.Config{
	MaxAttempts:    3,
	BackoffBase:    time.Second,
	AttemptTimeout: 30 * time.Second,
}

// fetchJSON performs a rate-limited GET with bounded retry and decodes the
// JSON body into result. Status codes map onto the error taxonomy:
// 404 is terminal ErrNotFound, 5xx and transport errors retry and surface as
// ErrSourceUnavailable once attempts are exhausted.
func fetchJSON(
	ctx context.Context,
	httpClient adapter.HTTPClient,
	limiter ratelimit.Limiter,
	provider string,
	url string,
	headers map[string]string,
	result interface{},
) error {
	var body []byte

	err := retry.Do(ctx, fetchRetryConfig, func(ctx context.Context) error {
		if err := limiter.Wait(ctx, provider); err != nil {
			return retry.Permanent(err)
		}

		resp, err := httpClient.GetResponse(ctx, url, headers)
		if err != nil {
			// Transport errors and timeouts are retryable
			return err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Warn("failed to close response body", zap.Error(err), zap.String("url", url))
			}
		}()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(domain.ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, provider, err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}

	return nil
}
