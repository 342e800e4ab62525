package artifact

import (
	"fmt"

	"github.com/google/uuid"

	"ai_backend/core"
)

// Key prefixes mirror the original storage layout.
const (
	PrefixOriginal    = "original"
	PrefixTransformed = "transformed"
	PrefixThumbnail   = "thumbnails"
)

// OriginalKey derives the storage key for a source image. Content-hashed:
// the same upload always lands on the same key, which is what makes Store
// idempotence meaningful.
func OriginalKey(data []byte) string {
	return fmt.Sprintf("%s/%s.png", PrefixOriginal, core.SumSHA256(data)[:32])
}

// TransformedKey derives the storage key for a rendered output. The content
// hash covers the render inputs' effect (same bytes, same key); the job id
// keeps keys traceable to the job that produced them.
func TransformedKey(data []byte, jobID string) string {
	return fmt.Sprintf("%s/%s-%s.png", PrefixTransformed, core.SumSHA256(data)[:32], shortID(jobID))
}

// ThumbnailKey derives the storage key for a thumbnail from its full-size
// transformed key's content.
func ThumbnailKey(data []byte, jobID string) string {
	return fmt.Sprintf("%s/%s-%s.jpg", PrefixThumbnail, core.SumSHA256(data)[:32], shortID(jobID))
}

// shortID truncates a UUID to its first segment for key readability.
// A malformed id is used as-is; keys only need uniqueness per content hash.
func shortID(jobID string) string {
	if u, err := uuid.Parse(jobID); err == nil {
		return u.String()[:8]
	}
	if len(jobID) > 8 {
		return jobID[:8]
	}
	return jobID
}
