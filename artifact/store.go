// Package artifact is the glue between the orchestrator and object storage:
// key derivation, the idempotent upload contract, and thumbnail generation.
// Bucket lifecycle, CORS, and presigned URLs belong to the storage service
// behind the Store interface, not here.
package artifact

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store persists rendered artifacts. Upload must be idempotent for the same
// key: re-uploading identical bytes under an existing key returns the same
// URL without rewriting.
type Store interface {
	// Upload writes bytes under key and returns an addressable URL.
	Upload(data []byte, key string) (string, error)
}

var (
	// ErrEmptyKey means an upload was attempted with no key
	ErrEmptyKey = errors.New("artifact: empty key")
	// ErrInvalidKey means the key escapes the store root or is malformed
	ErrInvalidKey = errors.New("artifact: invalid key")
)

// FSStore is a filesystem-backed Store. It mirrors the object-store layout
// (prefix/name keys) on local disk and serves URLs under a configured base,
// which the ingress layer maps to a static file route.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore creates a store rooted at dir, serving URLs under baseURL
// (e.g., "http://localhost:8080/artifacts"). The root is created if absent.
func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact: store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create store dir: %w", err)
	}
	return &FSStore{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Upload implements Store. Writes are atomic (temp file + rename) so a crash
// mid-write never leaves a truncated artifact under a valid key.
func (s *FSStore) Upload(data []byte, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}

	dst := filepath.Join(s.root, filepath.FromSlash(clean))

	// Idempotence: keys are content-derived, so an existing file under the
	// same key already holds these bytes.
	if _, err := os.Stat(dst); err == nil {
		return s.urlFor(clean), nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("artifact: create key dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("artifact: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("artifact: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("artifact: close: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("artifact: rename: %w", err)
	}

	return s.urlFor(clean), nil
}

// Root returns the store's filesystem root, for the static file route.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) urlFor(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}

var _ Store = (*FSStore)(nil)
