package fluxruntime

import (
	"context"
	"sync"
	"time"
)

// State is a point-in-time view of the accelerator. Exactly one State-owning
// Session exists per process.
type State struct {
	// Loaded reports whether the base model is resident
	Loaded bool `json:"loaded"`
	// ModelID identifies the loaded base model
	ModelID string `json:"model_id"`
	// CurrentStyle is the applied adapter's style id, empty for bare base model
	CurrentStyle string `json:"current_style,omitempty"`
	// Busy reports whether a session is currently held
	Busy bool `json:"busy"`
	// LastError is the most recent accelerator error message, empty if none
	LastError string `json:"last_error,omitempty"`
	// LastUsed is when the accelerator last completed a render
	LastUsed time.Time `json:"last_used,omitempty"`
}

// Session is the single-permit exclusive lock around the accelerator.
//
// The permit is a one-slot channel rather than a mutex: a blocked Acquire can
// be abandoned when the caller's context expires, and the permit's type makes
// the "at most one holder" invariant structural instead of conventional.
// There is deliberately no pool behind it. One model, one VRAM, one permit.
//
// Blocking in Acquire while another job renders is the system's backpressure;
// callers observe it as queue wait, never as a stuck request thread.
type Session struct {
	permit chan struct{}

	mu     sync.Mutex
	state  State
	closed bool

	// acquisitions counts successful Acquire calls, for tests and telemetry
	acquisitions int64
}

// NewSession creates the process-wide accelerator session. The base model is
// not loaded yet; the engine loads it during startup or operator reload.
func NewSession() *Session {
	s := &Session{permit: make(chan struct{}, 1)}
	s.permit <- struct{}{}
	return s
}

// Acquire takes the exclusive permit, blocking until it is free or ctx ends.
// Every EnsureStyle+Infer pair, style reload, and model reload runs inside
// one Acquire/Release span.
func (s *Session) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	select {
	case <-s.permit:
	case <-ctx.Done():
		return ErrAcquireTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Closed while we were waiting; do not hand out a permit on a dead
		// session. The permit is not returned because Close drained it.
		return ErrSessionClosed
	}
	s.state.Busy = true
	s.acquisitions++
	return nil
}

// Release returns the permit. Must be called exactly once per successful
// Acquire, typically via defer.
func (s *Session) Release() {
	s.mu.Lock()
	s.state.Busy = false
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}

	select {
	case s.permit <- struct{}{}:
	default:
		// Double release. Dropping the extra permit keeps the invariant
		// (capacity 1) instead of corrupting it.
	}
}

// Close shuts the session down. Waiters in Acquire fail with
// ErrSessionClosed once the current holder (if any) releases.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.state.Loaded = false

	// Drain the permit if it is free so no new holder appears.
	select {
	case <-s.permit:
	default:
	}
}

// Snapshot returns a copy of the current accelerator state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Acquisitions returns how many times the permit has been taken.
func (s *Session) Acquisitions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquisitions
}

// setState mutates accelerator state under the session's own lock. Callers
// must hold the permit; the lock here only orders Snapshot readers.
func (s *Session) setState(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}
