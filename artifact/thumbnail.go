package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Thumbnail generation errors.
var (
	ErrInvalidImage = errors.New("artifact: invalid image data")
	ErrEmptyImage   = errors.New("artifact: empty image data")
)

// ThumbnailSize is the square bounding box thumbnails are scaled into.
const ThumbnailSize = 256

// thumbnailQuality is the JPEG quality for thumbnails. Thumbnails are
// previews; 85 keeps them small without visible banding.
const thumbnailQuality = 85

// Thumbnail scales an image to fit ThumbnailSize, preserving aspect ratio,
// and encodes it as JPEG. CatmullRom costs more than nearest-neighbor but
// thumbnails are generated once per render, off the accelerator path.
func Thumbnail(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}

	// Fit inside the square box.
	tw, th := ThumbnailSize, ThumbnailSize
	if w > h {
		th = h * ThumbnailSize / w
	} else if h > w {
		tw = w * ThumbnailSize / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("artifact: encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}
