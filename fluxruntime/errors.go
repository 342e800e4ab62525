// Package fluxruntime owns the single accelerator-resident image model: the
// exclusive session around it, the adapter swap discipline, and the render
// call itself. Nothing outside this package touches the accelerator.
package fluxruntime

import "errors"

// Sentinel errors for accelerator operations. The scheduler keys its retry
// and rejection policy off these, so their identity is part of the contract.
var (
	// ErrAcceleratorMemory means the render ran out of accelerator memory.
	// Transient: the scheduler retries exactly once at the next-lower tier.
	ErrAcceleratorMemory = errors.New("fluxruntime: accelerator memory exhausted")

	// ErrModelUnavailable means the base model is not loaded. Fatal for new
	// work until an operator-triggered reload succeeds.
	ErrModelUnavailable = errors.New("fluxruntime: base model unavailable")

	// ErrStyleUnavailable means the adapter artifact is missing, corrupt, or
	// incompatible. Surfaced to the caller, never retried.
	ErrStyleUnavailable = errors.New("fluxruntime: style adapter unavailable")

	// ErrInvalidParams means render parameters failed validation
	ErrInvalidParams = errors.New("fluxruntime: invalid render parameters")

	// ErrRenderFailed means the render itself failed for a non-memory reason
	ErrRenderFailed = errors.New("fluxruntime: render failed")

	// ErrSessionClosed means the accelerator session has been shut down
	ErrSessionClosed = errors.New("fluxruntime: accelerator session closed")

	// ErrAcquireTimeout means the caller's context expired while waiting for
	// the session permit
	ErrAcquireTimeout = errors.New("fluxruntime: timeout acquiring accelerator session")

	// ErrSessionNotHeld means EnsureStyle or Infer was called outside an
	// acquired session. Always a programming error in the caller.
	ErrSessionNotHeld = errors.New("fluxruntime: accelerator session not held")
)
