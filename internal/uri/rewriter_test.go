package uri_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumenart/curator/internal/uri"
)

func TestRewrite(t *testing.T) {
	r := uri.NewRewriter("https://gateway.example.com/ipfs/")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "ipfs URI rewrites to gateway",
			input:    "ipfs://bafyABC/image.png",
			expected: "https://gateway.example.com/ipfs/bafyABC/image.png",
		},
		{
			name:     "ipfs URI with redundant path segment",
			input:    "ipfs://ipfs/QmXYZ",
			expected: "https://gateway.example.com/ipfs/QmXYZ",
		},
		{
			name:     "http URL passes through",
			input:    "https://example.com/art.png",
			expected: "https://example.com/art.png",
		},
		{
			name:     "foreign gateway URL re-pointed",
			input:    "https://other-gateway.net/ipfs/Qm123/meta.json",
			expected: "https://gateway.example.com/ipfs/Qm123/meta.json",
		},
		{
			name:     "data URI untouched",
			input:    "data:image/png;base64,iVBORw0KGgo=",
			expected: "data:image/png;base64,iVBORw0KGgo=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Rewrite(tt.input))
		})
	}
}

func TestRewriteWithGateway_Override(t *testing.T) {
	r := uri.NewRewriter("")

	got := r.RewriteWithGateway("ipfs://Qm456/img.png", "https://pin.example.org/ipfs")
	assert.Equal(t, "https://pin.example.org/ipfs/Qm456/img.png", got)

	// Empty override falls back to the default gateway
	got = r.RewriteWithGateway("ipfs://Qm456/img.png", "")
	assert.Equal(t, uri.DefaultIPFSGateway+"Qm456/img.png", got)
}

func TestReplaceTokenPlaceholder(t *testing.T) {
	got := uri.ReplaceTokenPlaceholder("https://api.example.com/token/{id}.json", "42")
	assert.Equal(t, "https://api.example.com/token/42.json", got)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "img.png", uri.Filename("https://x.io/a/b/img.png"))
	assert.Equal(t, "img.png", uri.Filename("https://x.io/a/img.png?width=500"))
	assert.Equal(t, "QmXYZ", uri.Filename("ipfs://QmXYZ"))
}
