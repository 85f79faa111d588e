package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/logger"
	mediaprovider "github.com/lumenart/curator/internal/media/provider"
	"github.com/lumenart/curator/internal/retry"
	"github.com/lumenart/curator/internal/uri"
)

// DefaultMaxMediaBytes caps how much of a media payload is pulled into memory
// for sniffing and dimension extraction
const DefaultMaxMediaBytes int64 = 32 << 20

// Result is the outcome of resolving one media reference: a stable URL plus
// everything learned about the content on the way
type Result struct {
	URL        string
	MIMEType   string
	Dimensions *domain.Dimensions
	Tags       []string
	AssetID    string
}

// ResolveOptions tune a single resolution call
type ResolveOptions struct {
	// Gateway overrides the configured IPFS gateway for this call
	Gateway string
	// ContractAddress and TokenID feed the content tags on the upload
	ContractAddress string
	TokenID         string
}

// Resolver turns raw media references (ipfs://, http(s)://, data:) into
// stable hosted URLs with sniffed MIME type and pixel dimensions
//
//go:generate mockgen -source=resolver.go -destination=../mocks/media_resolver.go -package=mocks -mock_names=Resolver=MockMediaResolver
type Resolver interface {
	// ResolveMedia fetches, classifies and re-hosts a single media reference
	ResolveMedia(ctx context.Context, mediaURI string, opts ResolveOptions) (*Result, error)
}

type resolver struct {
	httpClient adapter.HTTPClient
	rewriter   uri.Rewriter
	provider   mediaprovider.Provider
	retryCfg   retry.Config
	maxBytes   int64
}

// NewResolver creates a media resolver. A nil provider disables re-hosting so
// resolved gateway URLs are returned as-is; maxBytes <= 0 falls back to
// DefaultMaxMediaBytes.
func NewResolver(httpClient adapter.HTTPClient, rewriter uri.Rewriter, uploader mediaprovider.Provider, maxBytes int64) Resolver {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMediaBytes
	}
	return &resolver{
		httpClient: httpClient,
		rewriter:   rewriter,
		provider:   uploader,
		retryCfg:   retry.DefaultMediaConfig(),
		maxBytes:   maxBytes,
	}
}

// ResolveMedia fetches, classifies and re-hosts a single media reference.
//
// data: URIs are already inline and pass through untouched. Everything else is
// rewritten to a fetchable URL, downloaded with bounded retry, sniffed for its
// real MIME type (source-declared types are routinely wrong) and uploaded to
// the hosting provider. Download and upload failures surface as retryable
// media-fetch errors; content that is neither image nor video is an
// unsupported-media-type error, which callers treat as terminal for the field.
func (r *resolver) ResolveMedia(ctx context.Context, mediaURI string, opts ResolveOptions) (*Result, error) {
	if mediaURI == "" {
		return nil, fmt.Errorf("empty media uri: %w", domain.ErrMediaFetch)
	}

	if uri.IsDataURI(mediaURI) {
		return &Result{
			URL:      mediaURI,
			MIMEType: dataURIMIMEType(mediaURI),
		}, nil
	}

	fetchURL := r.rewriter.RewriteWithGateway(mediaURI, opts.Gateway)
	if !uri.IsHTTPURL(fetchURL) {
		return nil, fmt.Errorf("unfetchable media uri %q: %w", mediaURI, domain.ErrMediaFetch)
	}

	content, err := r.download(ctx, fetchURL)
	if err != nil {
		return nil, err
	}

	mtype := mimetype.Detect(content)
	mimeType := mtype.String()

	result := &Result{
		URL:      fetchURL,
		MIMEType: mimeType,
		Tags:     GenerateTags(uri.Filename(mediaURI), mimeType, opts.ContractAddress, opts.TokenID),
	}

	isImage := strings.HasPrefix(mimeType, "image/")
	isVideo := strings.HasPrefix(mimeType, "video/")
	if !isImage && !isVideo {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, mimeType)
	}

	if isImage {
		result.Dimensions = ExtractDimensions(content)
		if result.Dimensions == nil {
			logger.WarnCtx(ctx, "could not read image dimensions",
				zap.String("url", fetchURL), zap.String("mimeType", mimeType))
		}
	}

	if r.provider == nil {
		return result, nil
	}

	upload := mediaprovider.Upload{
		Filename: uploadFilename(mediaURI, mtype),
		MIMEType: mimeType,
		Content:  content,
		Tags:     result.Tags,
		Metadata: map[string]any{
			"contract_address": opts.ContractAddress,
			"token_id":         opts.TokenID,
		},
	}

	var uploaded *mediaprovider.UploadResult
	if isVideo {
		uploaded, err = r.provider.UploadVideo(ctx, fetchURL, upload)
	} else {
		uploaded, err = r.provider.UploadImage(ctx, fetchURL, upload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: upload of %s: %v", domain.ErrMediaFetch, mediaURI, err)
	}

	if uploaded.URL != "" {
		result.URL = uploaded.URL
	}
	result.AssetID = uploaded.ProviderAssetID

	return result, nil
}

// download pulls at most maxBytes+1 of the payload with bounded retry. A non-2xx
// client error is permanent; 429, 5xx and transport errors retry with backoff
// until the retry budget is spent, after which the error is a retryable
// media-fetch failure for the orchestrator to reschedule.
func (r *resolver) download(ctx context.Context, fetchURL string) ([]byte, error) {
	var content []byte

	err := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
		resp, err := r.httpClient.GetResponse(ctx, fetchURL, nil)
		if err != nil {
			return fmt.Errorf("failed to fetch media: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.WarnCtx(ctx, "failed to close response body", zap.Error(err), zap.String("url", fetchURL))
			}
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("unexpected status code %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return retry.Permanent(err)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
		if err != nil {
			return fmt.Errorf("failed to read media body: %w", err)
		}
		if int64(len(body)) > r.maxBytes {
			return retry.Permanent(fmt.Errorf("media exceeds %d byte cap", r.maxBytes))
		}

		content = body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMediaFetch, fetchURL, err)
	}

	return content, nil
}

// dataURIMIMEType pulls the declared media type out of a data: URI header
func dataURIMIMEType(dataURI string) string {
	header, _, found := strings.Cut(strings.TrimPrefix(dataURI, "data:"), ",")
	if !found {
		return ""
	}
	return strings.Split(header, ";")[0]
}

// uploadFilename derives the provider-side file name, appending an extension
// when the source URI has none
func uploadFilename(mediaURI string, mtype *mimetype.MIME) string {
	name := uri.Filename(mediaURI)
	if !strings.Contains(name, ".") && mtype.Extension() != "" {
		name += mtype.Extension()
	}
	return name
}
