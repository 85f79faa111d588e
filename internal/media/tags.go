package media

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// MaxTags caps how many classification tags a single upload carries
const MaxTags = 6

// GenerateTags derives the classification tags attached to an uploaded media
// file. The first tag is a stable content tag hashed from the inputs so
// repeated uploads of the same media land on the same tag; the rest classify
// by media class, MIME type and on-chain identity. Never more than MaxTags.
func GenerateTags(baseName, mimeType, contractAddress, tokenID string) []string {
	sum := sha256.Sum256([]byte(strings.Join([]string{baseName, mimeType, contractAddress, tokenID}, "|")))
	tags := []string{fmt.Sprintf("content:%x", sum[:6])}

	mimeType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if class, _, found := strings.Cut(mimeType, "/"); found && class != "" {
		tags = append(tags, "class:"+class)
	}
	if mimeType != "" {
		tags = append(tags, "mime:"+mimeType)
	}
	if baseName != "" {
		tags = append(tags, "name:"+sanitizeTag(baseName))
	}
	if contractAddress != "" {
		tags = append(tags, "contract:"+strings.ToLower(contractAddress))
	}
	if tokenID != "" {
		tags = append(tags, "token:"+tokenID)
	}

	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	return tags
}

// sanitizeTag keeps tag values to a provider-safe character set
func sanitizeTag(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(value))
}
