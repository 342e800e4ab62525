package fluxruntime

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// LocalRenderer is a deterministic in-process render backend. It stands in
// for the accelerator-resident FLUX pipeline in development and tests: same
// interface, same failure modes, and byte-identical output for identical
// (params, adapter) inputs, which is what the determinism contract requires.
//
// The "style" it applies is a seeded per-pixel tint derived from the prompt,
// adapter path, and blend weight. Visually meaningless, referentially honest.
type LocalRenderer struct {
	mu sync.Mutex

	modelID string
	loaded  bool

	adapterPath   string
	adapterWeight float64

	// RenderDelay simulates accelerator-resident time per render. Zero in
	// tests, configurable in development to exercise queue behavior.
	RenderDelay time.Duration
}

// NewLocalRenderer creates a deterministic local backend for the given model id.
func NewLocalRenderer(modelID string) *LocalRenderer {
	return &LocalRenderer{modelID: modelID}
}

// ModelID implements Renderer.
func (r *LocalRenderer) ModelID() string { return r.modelID }

// LoadBase implements Renderer.
func (r *LocalRenderer) LoadBase(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = true
	return nil
}

// UnloadBase implements Renderer.
func (r *LocalRenderer) UnloadBase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.adapterPath = ""
	r.adapterWeight = 0
}

// ApplyAdapter implements Renderer.
func (r *LocalRenderer) ApplyAdapter(_ context.Context, artifactPath string, weight float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrModelUnavailable
	}
	r.adapterPath = artifactPath
	r.adapterWeight = weight
	return nil
}

// RemoveAdapter implements Renderer.
func (r *LocalRenderer) RemoveAdapter(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapterPath = ""
	r.adapterWeight = 0
	return nil
}

// Render implements Renderer. Output depends only on params and the applied
// adapter, never on wall clock or call order.
func (r *LocalRenderer) Render(ctx context.Context, params RenderParams) ([]byte, error) {
	r.mu.Lock()
	loaded := r.loaded
	adapterPath := r.adapterPath
	adapterWeight := r.adapterWeight
	delay := r.RenderDelay
	r.mu.Unlock()

	if !loaded {
		return nil, ErrModelUnavailable
	}
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// The real accelerator cannot be interrupted mid-render; the
			// simulated one honors cancellation only to keep tests fast.
			return nil, ctx.Err()
		}
	}

	src, _, err := image.Decode(bytes.NewReader(params.InitImage))
	if err != nil {
		return nil, fmt.Errorf("%w: decode init image: %v", ErrRenderFailed, err)
	}

	// Scale the init image to the output size, then apply the seeded tint.
	dst := image.NewRGBA(image.Rect(0, 0, params.Width, params.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	rng := rand.New(rand.NewSource(renderKey(params, adapterPath, adapterWeight)))
	tintR := uint8(rng.Intn(256))
	tintG := uint8(rng.Intn(256))
	tintB := uint8(rng.Intn(256))

	// Strength controls how far each pixel moves toward the tint, mirroring
	// how denoising strength trades subject preservation for style.
	blend := params.Strength
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := dst.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: mix(c.R, tintR, blend),
				G: mix(c.G, tintG, blend),
				B: mix(c.B, tintB, blend),
				A: c.A,
			})
		}
	}

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrRenderFailed, err)
	}
	return out.Bytes(), nil
}

// renderKey folds everything that must influence the output into one seed.
func renderKey(params RenderParams, adapterPath string, adapterWeight float64) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s|%d|%d|%.4f|%d|%s|%.4f",
		params.Seed, params.Prompt, params.NegativePrompt,
		params.Width, params.Height, params.Strength, params.Steps,
		adapterPath, adapterWeight)
	return int64(h.Sum64() &^ (1 << 63))
}

// mix blends a toward b by fraction t.
func mix(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}
