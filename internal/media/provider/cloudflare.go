package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/logger"
)

const (
	CloudflareProviderName    = "cloudflare"
	cloudflareImagePrefix     = "https://imagedelivery.net/"
	cloudflareImageVariant    = "public"
	cloudflareVideoReadyLimit = 5 * time.Minute
)

// CloudflareConfig holds configuration for Cloudflare Images and Stream
type CloudflareConfig struct {
	// AccountID is the Cloudflare account ID for Images
	AccountID string
	// APIToken is the API token for authentication
	APIToken string
}

// cloudflareProvider hosts images on Cloudflare Images and videos on
// Cloudflare Stream
type cloudflareProvider struct {
	cfClient adapter.CloudflareClient
	config   *CloudflareConfig
	rc       *cloudflare.ResourceContainer
}

// NewCloudflare creates a media provider backed by Cloudflare Images and Stream
func NewCloudflare(cfClient adapter.CloudflareClient, config *CloudflareConfig) Provider {
	return &cloudflareProvider{
		cfClient: cfClient,
		config:   config,
		rc: &cloudflare.ResourceContainer{
			Level:      cloudflare.AccountRouteLevel,
			Identifier: config.AccountID,
		},
	}
}

// Name returns the provider name
func (p *cloudflareProvider) Name() string {
	return CloudflareProviderName
}

// UploadImage uploads an image to Cloudflare Images. URL-based upload is tried
// first; when Cloudflare cannot fetch the source itself the already-downloaded
// bytes are streamed instead.
func (p *cloudflareProvider) UploadImage(ctx context.Context, sourceURL string, upload Upload) (*UploadResult, error) {
	if strings.HasPrefix(sourceURL, cloudflareImagePrefix) {
		// Already hosted by us, re-uploading would loop
		return nil, fmt.Errorf("refusing to re-host our own delivery URL: %s", sourceURL)
	}

	metadata := uploadMetadata(sourceURL, upload)

	image, err := p.cfClient.UploadImage(ctx, p.rc, cloudflare.UploadImageParams{
		URL:      sourceURL,
		Metadata: metadata,
	})
	if err != nil && len(upload.Content) > 0 {
		logger.WarnCtx(ctx, "URL-based image upload failed, streaming downloaded bytes",
			zap.String("url", sourceURL), zap.Error(err))
		image, err = p.cfClient.UploadImage(ctx, p.rc, cloudflare.UploadImageParams{
			File:     io.NopCloser(bytes.NewReader(upload.Content)),
			Name:     upload.Filename,
			Metadata: metadata,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upload image to cloudflare: %w", err)
	}

	variantURLs := make(map[string]string)
	for _, variantURL := range image.Variants {
		variantURLs[path.Base(variantURL)] = variantURL
	}

	logger.InfoCtx(ctx, "Uploaded to Cloudflare Images",
		zap.String("imageID", image.ID),
		zap.Int("variantCount", len(variantURLs)),
	)

	return &UploadResult{
		URL:             stableImageURL(variantURLs),
		ProviderAssetID: image.ID,
		VariantURLs:     variantURLs,
		ProviderMetadata: map[string]any{
			"account_id": p.config.AccountID,
			"filename":   image.Filename,
			"media_type": "image",
		},
	}, nil
}

// UploadVideo uploads a video to Cloudflare Stream via URL and waits for
// processing to finish so playback URLs are available.
func (p *cloudflareProvider) UploadVideo(ctx context.Context, sourceURL string, upload Upload) (*UploadResult, error) {
	video, err := p.cfClient.UploadVideoFromURL(ctx, cloudflare.StreamUploadFromURLParameters{
		AccountID: p.config.AccountID,
		URL:       sourceURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload video to cloudflare stream: %w", err)
	}

	details, err := p.waitForVideoReady(ctx, video.UID)
	if err != nil {
		// Playback URLs may be missing but the upload itself succeeded
		logger.WarnCtx(ctx, "Failed to get complete video details, using basic info",
			zap.Error(err), zap.String("videoID", video.UID))
		details = video
	}

	variantURLs := make(map[string]string)
	if details.Playback.HLS != "" {
		variantURLs["hls"] = details.Playback.HLS
	}
	if details.Playback.Dash != "" {
		variantURLs["dash"] = details.Playback.Dash
	}
	if details.Thumbnail != "" {
		variantURLs["thumbnail"] = details.Thumbnail
	}

	logger.InfoCtx(ctx, "Uploaded to Cloudflare Stream",
		zap.String("videoID", details.UID),
		zap.String("status", string(details.Status.State)),
	)

	return &UploadResult{
		URL:             stableVideoURL(variantURLs),
		ProviderAssetID: details.UID,
		VariantURLs:     variantURLs,
		ProviderMetadata: map[string]any{
			"account_id": p.config.AccountID,
			"media_type": "video",
			"duration":   details.Duration,
			"status":     details.Status.State,
		},
	}, nil
}

// waitForVideoReady polls Cloudflare Stream until the video is ready or the
// poll budget runs out
func (p *cloudflareProvider) waitForVideoReady(ctx context.Context, videoID string) (cloudflare.StreamVideo, error) {
	var details cloudflare.StreamVideo

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = cloudflareVideoReadyLimit
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.5

	operation := func() error {
		video, err := p.cfClient.GetVideo(ctx, cloudflare.StreamParameters{
			AccountID: p.config.AccountID,
			VideoID:   videoID,
		})
		if err != nil {
			return fmt.Errorf("failed to get video: %w", err)
		}

		details = video

		switch video.Status.State {
		case "ready":
			return nil
		case "error", "failed":
			return backoff.Permanent(fmt.Errorf("video processing failed: %s", video.Status.ErrorReasonText))
		default:
			return fmt.Errorf("video not ready yet: %s", video.Status.State)
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return details, fmt.Errorf("waiting for video to be ready: %w", err)
	}

	return details, nil
}

// uploadMetadata builds the metadata map attached to every upload
func uploadMetadata(sourceURL string, upload Upload) map[string]any {
	metadata := map[string]any{
		"source_url": sourceURL,
		"mime_type":  upload.MIMEType,
	}
	if len(upload.Tags) > 0 {
		metadata["tags"] = strings.Join(upload.Tags, ",")
	}
	for key, value := range upload.Metadata {
		metadata[key] = value
	}
	return metadata
}

// stableImageURL picks the delivery URL persisted on the artwork record
func stableImageURL(variantURLs map[string]string) string {
	if url, ok := variantURLs[cloudflareImageVariant]; ok {
		return url
	}
	for _, url := range variantURLs {
		return url
	}
	return ""
}

// stableVideoURL picks the playback URL persisted on the artwork record
func stableVideoURL(variantURLs map[string]string) string {
	for _, name := range []string{"hls", "dash", "thumbnail"} {
		if url, ok := variantURLs[name]; ok {
			return url
		}
	}
	return ""
}
