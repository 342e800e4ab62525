package artifact

import (
	"fmt"

	"go.uber.org/zap"
)

// Output is the addressable result of persisting one render.
type Output struct {
	// OriginalURL is the source image as submitted
	OriginalURL string
	// URL is the full-size transformed image
	URL string
	// ThumbnailURL is the 256px preview
	ThumbnailURL string
}

// Pipeline persists render outputs: the source image, the full-size result,
// and its thumbnail, all under content-derived keys. It runs after the
// accelerator session is released; a slow store never extends accelerator
// occupancy.
type Pipeline struct {
	store  Store
	logger *zap.Logger
}

// NewPipeline wires a pipeline over a store.
func NewPipeline(store Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		logger: logger.Named("artifact"),
	}
}

// Persist uploads the source image, the rendered image, and its thumbnail
// for a job. The original's key carries no job id, so the same source
// submitted twice lands on one stored object. Any upload failure fails the
// persist: clients rely on all three URLs being present on a completed job.
func (p *Pipeline) Persist(original, rendered []byte, jobID string) (Output, error) {
	originalURL, err := p.store.Upload(original, OriginalKey(original))
	if err != nil {
		return Output{}, fmt.Errorf("artifact: upload original: %w", err)
	}

	imageURL, err := p.store.Upload(rendered, TransformedKey(rendered, jobID))
	if err != nil {
		return Output{}, fmt.Errorf("artifact: upload transformed: %w", err)
	}

	thumb, err := Thumbnail(rendered)
	if err != nil {
		return Output{}, fmt.Errorf("artifact: thumbnail: %w", err)
	}
	thumbURL, err := p.store.Upload(thumb, ThumbnailKey(thumb, jobID))
	if err != nil {
		return Output{}, fmt.Errorf("artifact: upload thumbnail: %w", err)
	}

	p.logger.Debug("artifacts persisted",
		zap.String("job_id", jobID),
		zap.Int("original_bytes", len(original)),
		zap.Int("image_bytes", len(rendered)),
		zap.Int("thumbnail_bytes", len(thumb)))

	return Output{OriginalURL: originalURL, URL: imageURL, ThumbnailURL: thumbURL}, nil
}
