// Package fingerprint computes the content digest used for tamper detection
// and duplicate suppression. The digest is always taken over the pre-stamp
// artifact; stamping happens after and never changes the published value.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hash returns the hex-encoded SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader digests r to EOF.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Short returns the 12-character digest prefix used in queue keys and
// storage object names.
func Short(digest string) string {
	if len(digest) < 12 {
		return digest
	}
	return digest[:12]
}
