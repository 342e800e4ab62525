package fluxruntime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ai_backend/styles"
)

// Engine is the inference engine: the one component allowed to touch the
// accelerator. It sequences adapter swaps and renders inside the exclusive
// Session and keeps the accelerator State truthful.
//
// Call discipline: the scheduler acquires the Session, then calls
// EnsureStyle followed by Infer, then releases. Engine methods that touch
// the accelerator refuse to run when the session is not held.
type Engine struct {
	session  *Session
	renderer Renderer
	// adapterDir is the directory holding adapter artifacts
	adapterDir string
	logger     *zap.Logger

	// adapterLoads counts actual ApplyAdapter calls, excluding no-op
	// EnsureStyle hits. Swap idempotence is verified against this.
	adapterLoads atomic.Int64
}

// NewEngine wires the engine over the process-wide session and a renderer.
func NewEngine(session *Session, renderer Renderer, adapterDir string, logger *zap.Logger) *Engine {
	return &Engine{
		session:    session,
		renderer:   renderer,
		adapterDir: adapterDir,
		logger:     logger.Named("engine"),
	}
}

// Session exposes the engine's session for acquisition by the scheduler.
func (e *Engine) Session() *Session { return e.session }

// AdapterLoads returns how many adapter loads have actually hit the renderer.
func (e *Engine) AdapterLoads() int64 { return e.adapterLoads.Load() }

// Available reports whether the base model is loaded. Checked by the
// scheduler at submit so new work is rejected while the model is down.
func (e *Engine) Available() bool {
	return e.session.Snapshot().Loaded
}

// LoadModel loads the base model. Used at startup and by the operator reload
// endpoint; it takes the session itself so a reload cannot race a render.
func (e *Engine) LoadModel(ctx context.Context) error {
	if err := e.session.Acquire(ctx); err != nil {
		return err
	}
	defer e.session.Release()

	if err := e.renderer.LoadBase(ctx); err != nil {
		e.session.setState(func(s *State) {
			s.Loaded = false
			s.LastError = err.Error()
		})
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	e.session.setState(func(s *State) {
		s.Loaded = true
		s.ModelID = e.renderer.ModelID()
		s.CurrentStyle = ""
		s.LastError = ""
	})
	e.logger.Info("base model loaded", zap.String("model_id", e.renderer.ModelID()))
	return nil
}

// ReloadModel is the operator recovery path: full unload and reload. On
// success the engine is available again and any prior last-error is cleared.
func (e *Engine) ReloadModel(ctx context.Context) error {
	if err := e.session.Acquire(ctx); err != nil {
		return err
	}
	e.renderer.UnloadBase()
	e.session.setState(func(s *State) {
		s.Loaded = false
		s.CurrentStyle = ""
	})
	e.session.Release()

	return e.LoadModel(ctx)
}

// EnsureStyle makes the accelerator carry exactly the adapter for the given
// style. Idempotent: when the style already matches, nothing touches the
// renderer. Must be called with the session held.
func (e *Engine) EnsureStyle(ctx context.Context, desc styles.Descriptor) error {
	state := e.session.Snapshot()
	if !state.Busy {
		return ErrSessionNotHeld
	}
	if !state.Loaded {
		return ErrModelUnavailable
	}
	if state.CurrentStyle == desc.ID {
		return nil
	}

	// Verify the artifact before unfusing the current adapter, so a bad swap
	// target leaves the previous style intact.
	if err := VerifyAdapterArtifact(e.adapterDir, desc.ArtifactPath, desc.ArtifactSHA256); err != nil {
		e.session.setState(func(s *State) { s.LastError = err.Error() })
		return err
	}

	if state.CurrentStyle != "" {
		if err := e.renderer.RemoveAdapter(ctx); err != nil {
			e.session.setState(func(s *State) { s.LastError = err.Error() })
			return fmt.Errorf("%w: unfuse %s: %v", ErrStyleUnavailable, state.CurrentStyle, err)
		}
		e.session.setState(func(s *State) { s.CurrentStyle = "" })
	}

	if err := e.renderer.ApplyAdapter(ctx, desc.ArtifactPath, desc.BlendWeight); err != nil {
		e.session.setState(func(s *State) { s.LastError = err.Error() })
		return fmt.Errorf("%w: fuse %s: %v", ErrStyleUnavailable, desc.ID, err)
	}

	e.adapterLoads.Add(1)
	e.session.setState(func(s *State) {
		s.CurrentStyle = desc.ID
		s.LastError = ""
	})
	e.logger.Info("style adapter applied",
		zap.String("style_id", desc.ID),
		zap.Float64("blend_weight", desc.BlendWeight))
	return nil
}

// Infer runs one render. Assumes EnsureStyle already applied the right
// adapter. Returns the output image and the seed the render actually used;
// when the caller supplied no seed (negative), one is generated so the
// result is reproducible on request. Must be called with the session held.
func (e *Engine) Infer(ctx context.Context, params RenderParams) ([]byte, int64, error) {
	state := e.session.Snapshot()
	if !state.Busy {
		return nil, 0, ErrSessionNotHeld
	}
	if !state.Loaded {
		return nil, 0, ErrModelUnavailable
	}

	if params.Seed < 0 {
		params.Seed = RandomSeed()
	}
	params.Strength = ClampStrength(params.Strength)
	if params.Steps == 0 {
		params.Steps = DefaultSteps
	}
	if params.GuidanceScale == 0 {
		params.GuidanceScale = DefaultGuidanceScale
	}

	if err := ValidateParams(params); err != nil {
		return nil, 0, err
	}

	start := time.Now()
	out, err := e.renderer.Render(ctx, params)
	if err != nil {
		e.session.setState(func(s *State) { s.LastError = err.Error() })
		return nil, 0, err
	}

	e.session.setState(func(s *State) {
		s.LastUsed = time.Now()
		s.LastError = ""
	})
	e.logger.Debug("render complete",
		zap.Int("width", params.Width),
		zap.Int("height", params.Height),
		zap.Int64("seed", params.Seed),
		zap.Duration("duration", time.Since(start)))
	return out, params.Seed, nil
}

// Close shuts the accelerator down for process exit.
func (e *Engine) Close() {
	e.session.Close()
	e.renderer.UnloadBase()
}
