// Package scheduler is the admission controller and orchestrator: it owns
// the job queue, the rate limiter, the single-slot accelerator admission,
// and every policy decision between a submitted request and its terminal
// state. No other component makes scheduling decisions.
package scheduler

import (
	"errors"

	"ai_backend/fluxruntime"
	"ai_backend/styles"
)

// Sentinel errors completing the caller-facing taxonomy. Together with the
// fluxruntime sentinels, these are the only error identities a caller ever
// sees: every failure path maps onto exactly one of them.
var (
	// ErrRateLimited means the client exceeded its admission quota.
	// Advise backoff; the request was never queued.
	ErrRateLimited = errors.New("scheduler: rate limited")

	// ErrJobNotFound means the job id is unknown or already evicted
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrDeadlineExceeded means the job expired while still queued, or its
	// result could not be delivered within its deadline
	ErrDeadlineExceeded = errors.New("scheduler: deadline exceeded")

	// ErrCanceled means the client canceled the job
	ErrCanceled = errors.New("scheduler: job canceled")

	// ErrJobTerminal means an operation required a non-terminal job
	ErrJobTerminal = errors.New("scheduler: job already terminal")

	// ErrShuttingDown means the scheduler is draining and admits nothing new
	ErrShuttingDown = errors.New("scheduler: shutting down")
)

// Taxonomy codes, stable across the HTTP surface and the journal.
const (
	CodeRateLimited       = "RATE_LIMITED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeDeadlineExceeded  = "DEADLINE_EXCEEDED"
	CodeAcceleratorMemory = "ACCELERATOR_MEMORY_EXHAUSTED"
	CodeModelUnavailable  = "MODEL_UNAVAILABLE"
	CodeStyleUnavailable  = "STYLE_UNAVAILABLE"
	CodeCanceled          = "CANCELED"
	CodeInternal          = "INTERNAL"
)

// Code maps any error from the submit/poll/render path onto its taxonomy
// code. Unrecognized errors map to CodeInternal, which the HTTP layer treats
// as a bug to surface, not a category to hide behind.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, styles.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, styles.ErrStyleNotFound), errors.Is(err, ErrJobNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDeadlineExceeded):
		return CodeDeadlineExceeded
	case errors.Is(err, fluxruntime.ErrAcceleratorMemory):
		return CodeAcceleratorMemory
	case errors.Is(err, fluxruntime.ErrModelUnavailable):
		return CodeModelUnavailable
	case errors.Is(err, fluxruntime.ErrStyleUnavailable):
		return CodeStyleUnavailable
	case errors.Is(err, ErrCanceled):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
