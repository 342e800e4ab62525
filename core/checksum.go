package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ComputeSHA256 computes the SHA-256 checksum of a file.
// The file is streamed through the hash, so large model artifacts do not
// need to fit in memory.
//
// Returns the checksum as a lowercase hex string.
func ComputeSHA256(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumSHA256 computes the SHA-256 checksum of a byte slice.
// Returns the checksum as a lowercase hex string.
//
// Used for content-derived artifact keys, where the same bytes must always
// produce the same key.
func SumSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
