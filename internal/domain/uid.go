package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ArtworkUID derives the secondary unique identifier for an artwork from its
// source identity. The tuple is canonicalized (RFC 8785) before hashing so the
// same identity always produces the same uid regardless of field ordering.
// A missing standard hashes as the empty string, which keeps the uid stable
// when the standard is learned later.
func ArtworkUID(source SourceName, standard Standard, contractAddress, tokenID string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"source":   string(source),
		"standard": string(standard),
		"contract": contractAddress,
		"token":    tokenID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal uid payload: %w", err)
	}

	canonical, err := jcs.Transform(payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize uid payload: %w", err)
	}

	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:]), nil
}
