// Package checksum provides SHA-256 checksum utilities for export integrity
// verification. Every rendered audit export carries its checksum in the response
// headers and in the EXPORT audit entry, so a file pulled from shared storage later
// can be verified against the trail that recorded its creation.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// SHA256 calculates the SHA256 checksum of data from a reader
func SHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SHA256Bytes calculates the SHA256 checksum of an in-memory payload.
func SHA256Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the checksum of data matches the expected checksum
func Verify(reader io.Reader, expectedChecksum string) (bool, error) {
	actualChecksum, err := SHA256(reader)
	if err != nil {
		return false, err
	}

	return actualChecksum == expectedChecksum, nil
}
