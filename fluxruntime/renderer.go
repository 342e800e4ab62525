package fluxruntime

import "context"

// Renderer is the opaque rendering capability behind the engine. The engine
// owns sequencing (session exclusivity, adapter swaps, seeding); a Renderer
// only executes the operations it is told to, in the order it is told.
//
// Two implementations ship: LocalRenderer, a deterministic in-process backend
// used for development and tests, and RemoteRenderer, which delegates to a
// hosted image API. Production deployments bind the CGo FLUX backend through
// this same interface.
type Renderer interface {
	// ModelID identifies the base model this renderer serves.
	ModelID() string

	// LoadBase loads the base model into accelerator memory. Idempotent.
	LoadBase(ctx context.Context) error

	// UnloadBase releases the base model. Safe to call when not loaded.
	UnloadBase()

	// ApplyAdapter fuses a style adapter into the loaded base model at the
	// given blend weight. At most one adapter is fused at a time; the engine
	// calls RemoveAdapter first when swapping.
	ApplyAdapter(ctx context.Context, artifactPath string, weight float64) error

	// RemoveAdapter unfuses the current adapter. No-op when none is applied.
	RemoveAdapter(ctx context.Context) error

	// Render performs one img2img render. Must be deterministic for a given
	// params value and applied adapter. Returns encoded PNG bytes.
	Render(ctx context.Context, params RenderParams) ([]byte, error)
}
