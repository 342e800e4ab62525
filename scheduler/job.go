package scheduler

import (
	"fmt"
	"sync"
	"time"

	"ai_backend/styles"
)

// JobState is the closed state set of the job lifecycle. Transitions go
// through Job.transition, which consults the table below; an invalid
// transition is an error, never a silent overwrite.
type JobState int

const (
	// StateQueued: admitted, waiting for dispatch
	StateQueued JobState = iota
	// StateDispatched: dequeued, acquiring or holding the accelerator
	StateDispatched
	// StateRendering: render in flight on the accelerator
	StateRendering
	// StateUploading: render done, artifacts being persisted
	StateUploading
	// StateCompleted: terminal success; Result is set
	StateCompleted
	// StateRejected: terminal, refused at admission
	StateRejected
	// StateExpired: terminal, deadline passed before completion
	StateExpired
	// StateCanceled: terminal, canceled by the client
	StateCanceled
	// StateFailed: terminal error after retry exhaustion
	StateFailed
)

// String returns the wire name of the state.
func (s JobState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateDispatched:
		return "dispatched"
	case StateRendering:
		return "rendering"
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	case StateExpired:
		return "expired"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateExpired, StateCanceled, StateFailed:
		return true
	}
	return false
}

// validTransitions is the full edge set. Rendering→Dispatched is the one
// backward edge, used exactly once per job for the memory-downgrade retry.
var validTransitions = map[JobState][]JobState{
	StateQueued:     {StateDispatched, StateRejected, StateExpired, StateCanceled},
	StateDispatched: {StateRendering, StateFailed, StateCanceled},
	StateRendering:  {StateUploading, StateDispatched, StateFailed, StateCanceled},
	StateUploading:  {StateCompleted, StateExpired, StateFailed, StateCanceled},
}

// canTransition checks the edge set.
func canTransition(from, to JobState) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Request is an immutable transformation request as delivered by ingress.
// The image bytes are already validated and size-limited upstream.
type Request struct {
	// ClientID identifies the submitting client for rate limiting
	ClientID string
	// ClientTier is the account tier, driving lane priority and style access
	ClientTier styles.Tier
	// Image is the validated source image bytes
	Image []byte
	// StyleID is the requested camera style
	StyleID string
	// Resolution is the requested output tier
	Resolution ResolutionTier
	// PromptVersion optionally pins a prompt record version; empty = latest
	PromptVersion string
	// Seed is an explicit render seed; negative means "generate one"
	Seed int64
	// SubmittedAt is stamped at ingress
	SubmittedAt time.Time
}

// Result is the stable payload of a completed job. Identical on every poll.
type Result struct {
	// OriginalURL is the source image as submitted
	OriginalURL string `json:"original_url"`
	// URL is the transformed image artifact
	URL string `json:"url"`
	// ThumbnailURL is the 256px preview artifact
	ThumbnailURL string `json:"thumbnail_url"`
	// Resolution is the tier actually rendered
	Resolution string `json:"resolution"`
	// Downgraded is true when Resolution differs from the requested tier
	Downgraded bool `json:"downgraded"`
	// Seed is the seed the render used; resubmitting it reproduces the output
	Seed int64 `json:"seed"`
	// ProcessingMs is wall time from submit to completion
	ProcessingMs int64 `json:"processing_ms"`
	// ModelID identifies the base model
	ModelID string `json:"model_id"`
	// StyleID is the applied camera style
	StyleID string `json:"style_id"`
	// PromptVersion identifies the prompt record used (never its text)
	PromptVersion string `json:"prompt_version"`
}

// Status is a point-in-time view of a job, returned by Poll. For terminal
// jobs it is immutable, so repeated polls are idempotent reads.
type Status struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
	// Result is set only in state "completed"
	Result *Result `json:"result,omitempty"`
	// ErrorCode is the taxonomy code for failed/rejected/expired/canceled
	ErrorCode string `json:"error_code,omitempty"`
	// Error is the human-readable failure summary
	Error string `json:"error,omitempty"`
}

// Job wraps a Request with its mutable lifecycle. Owned by the scheduler;
// clients hold only the id. All field access goes through the job's mutex;
// workers and pollers touch jobs concurrently.
type Job struct {
	// ID is the handle returned to the client
	ID string
	// Request is the immutable submission
	Request Request

	mu sync.Mutex

	state JobState
	// assigned is the resolution actually in effect (downgrades land here;
	// Request.Resolution never changes)
	assigned ResolutionTier
	// retries counts memory-downgrade retries consumed (max 1)
	retries int
	// canceled is the best-effort cancel flag for in-flight jobs
	canceled bool

	enqueuedAt  time.Time
	deadline    time.Time
	startedAt   time.Time
	completedAt time.Time

	result  *Result
	failure error

	// done closes when the job reaches a terminal state
	done chan struct{}
}

// newJob builds a queued job with its admission-time deadline.
func newJob(id string, req Request, deadline time.Time) *Job {
	return &Job{
		ID:         id,
		Request:    req,
		state:      StateQueued,
		assigned:   req.Resolution,
		enqueuedAt: time.Now(),
		deadline:   deadline,
		done:       make(chan struct{}),
	}
}

// transition moves the job along a valid edge, or reports why it cannot.
// Terminal entry closes done exactly once.
func (j *Job) transition(to JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.state, to) {
		return fmt.Errorf("scheduler: invalid transition %s -> %s for job %s",
			j.state, to, j.ID)
	}
	j.state = to
	if to.Terminal() {
		j.completedAt = time.Now()
		close(j.done)
	}
	return nil
}

// State returns the current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Assigned returns the resolution currently in effect.
func (j *Job) Assigned() ResolutionTier {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.assigned
}

// Downgraded reports whether the assigned tier differs from the request.
func (j *Job) Downgraded() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.assigned != j.Request.Resolution
}

// downgrade lowers the assigned tier one step. Reports whether it moved.
func (j *Job) downgrade() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	next, ok := j.assigned.Downgrade()
	if ok {
		j.assigned = next
	}
	return ok
}

// retryCount returns how many downgrade retries have been consumed.
func (j *Job) retryCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.retries
}

// consumeRetry spends the single downgrade retry.
func (j *Job) consumeRetry() {
	j.mu.Lock()
	j.retries++
	j.mu.Unlock()
}

// markCanceled sets the best-effort cancel flag.
func (j *Job) markCanceled() {
	j.mu.Lock()
	j.canceled = true
	j.mu.Unlock()
}

// isCanceled reads the cancel flag.
func (j *Job) isCanceled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.canceled
}

// Deadline returns the admission-time deadline.
func (j *Job) Deadline() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.deadline
}

// setResult attaches the completed payload. Called before the transition to
// StateCompleted so a poller never observes completed-without-result.
func (j *Job) setResult(r *Result) {
	j.mu.Lock()
	j.result = r
	j.mu.Unlock()
}

// setFailure records the terminal error.
func (j *Job) setFailure(err error) {
	j.mu.Lock()
	j.failure = err
	j.mu.Unlock()
}

// Failure returns the terminal error, if any.
func (j *Job) Failure() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failure
}

// Result returns the completed payload, nil until StateCompleted.
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Done returns the channel closed at terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Snapshot builds the Poll view.
func (j *Job) Snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := Status{
		JobID: j.ID,
		State: j.state.String(),
	}
	if j.state == StateCompleted && j.result != nil {
		r := *j.result
		st.Result = &r
	}
	if j.failure != nil {
		st.ErrorCode = Code(j.failure)
		st.Error = j.failure.Error()
	}
	return st
}
