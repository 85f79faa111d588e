package uri

import (
	"fmt"
	"strings"
)

// DefaultIPFSGateway is the gateway used when none is configured
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

// Rewriter rewrites content-addressed URIs to fetchable HTTP URLs.
// ipfs:// URIs are rewritten to the configured gateway; HTTP(S) and data:
// URIs pass through unchanged.
//
//go:generate mockgen -source=rewriter.go -destination=../mocks/uri_rewriter.go -package=mocks -mock_names=Rewriter=MockURIRewriter
type Rewriter interface {
	// Rewrite converts uri to a fetchable URL using the configured gateway
	Rewrite(uri string) string
	// RewriteWithGateway converts uri using an explicit gateway override
	RewriteWithGateway(uri, gateway string) string
}

type rewriter struct {
	gateway string
}

// NewRewriter creates a rewriter with the given default IPFS gateway.
// An empty gateway falls back to DefaultIPFSGateway.
func NewRewriter(gateway string) Rewriter {
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	return &rewriter{gateway: normalizeGateway(gateway)}
}

func (r *rewriter) Rewrite(uri string) string {
	return r.RewriteWithGateway(uri, r.gateway)
}

func (r *rewriter) RewriteWithGateway(uri, gateway string) string {
	if gateway == "" {
		gateway = r.gateway
	}
	gateway = normalizeGateway(gateway)

	if IsDataURI(uri) {
		return uri
	}

	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		// Some mints embed the redundant ipfs/ path segment in the CID
		cid = strings.TrimPrefix(cid, "ipfs/")
		return gateway + cid
	}

	// HTTP URLs that point at some other gateway are re-pointed at ours so
	// media fetches do not depend on a private gateway staying up
	if strings.HasPrefix(uri, "http") && strings.Contains(uri, "/ipfs/") {
		parts := strings.SplitN(uri, "/ipfs/", 2)
		if len(parts) == 2 && parts[1] != "" {
			return gateway + parts[1]
		}
	}

	return uri
}

// IsDataURI reports whether uri is an inline data: URI
func IsDataURI(uri string) bool {
	return strings.HasPrefix(uri, "data:")
}

// IsHTTPURL reports whether uri is a plain HTTP(S) URL
func IsHTTPURL(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// IsIPFSURI reports whether uri uses the ipfs:// scheme
func IsIPFSURI(uri string) bool {
	return strings.HasPrefix(uri, "ipfs://")
}

func normalizeGateway(gateway string) string {
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return gateway
}

// ReplaceTokenPlaceholder substitutes the ERC1155 {id} placeholder in a
// metadata URI with the actual token number
func ReplaceTokenPlaceholder(uri, tokenID string) string {
	return strings.ReplaceAll(uri, "{id}", tokenID)
}

// Filename derives a stable base name for an uploaded media file from its URI
func Filename(uri string) string {
	trimmed := strings.TrimSuffix(uri, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return trimmed
	}
	name := trimmed[idx+1:]
	if q := strings.IndexByte(name, '?'); q >= 0 {
		name = name[:q]
	}
	if name == "" {
		return fmt.Sprintf("media-%d", len(trimmed))
	}
	return name
}
