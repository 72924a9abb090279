// Package hash provides the content-hash functions used for pack integrity
// and provenance entries.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// DigestText returns the sha256 hex digest of the exact text.
func DigestText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DigestJCS canonicalizes JSON per RFC 8785 and returns a sha256 hex digest,
// so semantically identical documents hash identically regardless of key
// order or whitespace.
func DigestJCS(input []byte) (string, error) {
	canonical, err := jcs.Transform(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// DigestContent hashes model output: JCS canonical digest when the content
// is valid JSON, plain text digest otherwise.
func DigestContent(content string) string {
	trimmed := []byte(content)
	if json.Valid(trimmed) {
		if digest, err := DigestJCS(trimmed); err == nil {
			return digest
		}
	}
	return DigestText(content)
}
