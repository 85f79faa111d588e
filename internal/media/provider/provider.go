package provider

import (
	"context"
)

// UploadResult represents the result of uploading media to a hosting provider
type UploadResult struct {
	// URL is the stable delivery URL for the uploaded asset
	URL string
	// ProviderAssetID is the provider-specific identifier (e.g., Cloudflare image ID)
	ProviderAssetID string
	// VariantURLs maps variant names to their URLs (e.g., {"thumbnail": "https://..."})
	VariantURLs map[string]string
	// ProviderMetadata contains provider-specific metadata
	ProviderMetadata map[string]any
}

// Upload carries everything a provider needs besides the source URL
type Upload struct {
	// Filename is the base name for the uploaded file, with extension
	Filename string
	// MIMEType is the sniffed content type of the media
	MIMEType string
	// Content holds the already-downloaded bytes, used as a fallback when the
	// provider cannot fetch the source URL itself
	Content []byte
	// Tags classify the upload for dedup and search on the provider side
	Tags []string
	// Metadata is attached to the upload verbatim
	Metadata map[string]any
}

// Provider defines the interface for persistent media hosting providers
//
//go:generate mockgen -source=provider.go -destination=../../mocks/media_provider.go -package=mocks -mock_names=Provider=MockMediaProvider
type Provider interface {
	// UploadImage uploads an image and returns its stable hosting URLs
	UploadImage(ctx context.Context, sourceURL string, upload Upload) (*UploadResult, error)

	// UploadVideo uploads a video or animation and returns its stable hosting URLs
	UploadVideo(ctx context.Context, sourceURL string, upload Upload) (*UploadResult, error)

	// Name returns the provider name
	Name() string
}
