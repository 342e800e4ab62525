// This file contains ingress parsing for transformation submissions:
// multipart form decoding, image sniffing, and field validation. Everything
// here is request-shape validation; admission policy stays in the scheduler.
package webapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ai_backend/scheduler"
	"ai_backend/styles"
)

// DefaultMaxUploadBytes caps the source image size accepted at ingress.
const DefaultMaxUploadBytes = 10 << 20

// Ingress validation errors. These map to 422 on the wire.
var (
	// ErrMissingClientID is returned when the X-Client-ID header is absent.
	ErrMissingClientID = errors.New("webapi: missing X-Client-ID header")

	// ErrMissingImage is returned when the multipart form has no image part.
	ErrMissingImage = errors.New("webapi: missing image file")

	// ErrMissingStyle is returned when the style_id field is absent.
	ErrMissingStyle = errors.New("webapi: missing style_id field")

	// ErrUnsupportedImage is returned when the upload is not PNG or JPEG.
	ErrUnsupportedImage = errors.New("webapi: image must be PNG or JPEG")

	// ErrImageTooLarge is returned when the upload exceeds the size cap.
	ErrImageTooLarge = errors.New("webapi: image exceeds size limit")
)

// Header names carrying client identity. A fronting gateway authenticates
// the client and stamps these; this service trusts them as-is.
const (
	headerClientID   = "X-Client-ID"
	headerClientTier = "X-Client-Tier"
)

// parseSubmitRequest decodes a multipart submission into a scheduler request.
//
// Expected form fields:
//   - image: the source photo (PNG or JPEG, required)
//   - style_id: the camera style (required)
//   - resolution: preview|standard|high (default: standard)
//   - prompt_version: pin a prompt record version (optional)
//   - seed: explicit render seed for reproducibility (optional)
func parseSubmitRequest(r *http.Request, maxUploadBytes int64) (scheduler.Request, error) {
	var req scheduler.Request

	req.ClientID = r.Header.Get(headerClientID)
	if req.ClientID == "" {
		return req, ErrMissingClientID
	}
	req.ClientTier = styles.ParseTier(r.Header.Get(headerClientTier))

	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, ErrImageTooLarge
		}
		return req, fmt.Errorf("webapi: parse multipart form: %w", err)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return req, ErrMissingImage
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, ErrImageTooLarge
		}
		return req, fmt.Errorf("webapi: read image: %w", err)
	}
	if int64(len(image)) > maxUploadBytes {
		return req, ErrImageTooLarge
	}
	if err := sniffImage(image); err != nil {
		return req, err
	}
	req.Image = image

	req.StyleID = r.FormValue("style_id")
	if req.StyleID == "" {
		return req, ErrMissingStyle
	}

	req.Resolution = scheduler.TierStandard
	if res := r.FormValue("resolution"); res != "" {
		tier, err := scheduler.ParseResolutionTier(res)
		if err != nil {
			return req, fmt.Errorf("webapi: %w", err)
		}
		req.Resolution = tier
	}

	req.PromptVersion = r.FormValue("prompt_version")

	req.Seed = -1
	if seed := r.FormValue("seed"); seed != "" {
		parsed, err := strconv.ParseInt(seed, 10, 64)
		if err != nil || parsed < 0 {
			return req, fmt.Errorf("webapi: invalid seed %q", seed)
		}
		req.Seed = parsed
	}

	req.SubmittedAt = time.Now()
	return req, nil
}

// sniffImage verifies the upload is a PNG or JPEG by content, not extension.
func sniffImage(data []byte) error {
	if len(data) == 0 {
		return ErrMissingImage
	}
	switch http.DetectContentType(data) {
	case "image/png", "image/jpeg":
		return nil
	default:
		return ErrUnsupportedImage
	}
}
