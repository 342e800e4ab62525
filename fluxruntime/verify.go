package fluxruntime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ai_backend/core"
)

// VerifyAdapterArtifact checks that a style's adapter artifact exists and,
// when an expected checksum is configured, that its SHA-256 matches.
//
// Any failure maps to ErrStyleUnavailable: from the caller's point of view a
// missing file and a corrupt file are the same condition, and neither is
// retryable.
func VerifyAdapterArtifact(adapterDir, artifactPath, expectedSHA256 string) error {
	full := filepath.Join(adapterDir, artifactPath)

	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: artifact %s not found", ErrStyleUnavailable, artifactPath)
	}
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrStyleUnavailable, artifactPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: artifact %s is a directory", ErrStyleUnavailable, artifactPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: artifact %s is empty", ErrStyleUnavailable, artifactPath)
	}

	if expectedSHA256 == "" {
		return nil
	}

	actual, err := core.ComputeSHA256(full)
	if err != nil {
		return fmt.Errorf("%w: checksum %s: %v", ErrStyleUnavailable, artifactPath, err)
	}
	if actual != expectedSHA256 {
		return fmt.Errorf("%w: artifact %s checksum mismatch (expected %s, got %s)",
			ErrStyleUnavailable, artifactPath, expectedSHA256, actual)
	}
	return nil
}
