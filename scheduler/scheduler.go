package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ai_backend/artifact"
	"ai_backend/core"
	"ai_backend/fluxruntime"
	"ai_backend/styles"
)

// Scheduler is the admission controller. It is the only component that
// admits work to the accelerator session: dispatch workers funnel every job
// through the single permit, apply downgrade and retry policy, and drive
// each job to exactly one terminal state.
type Scheduler struct {
	cfg      Config
	registry *styles.Registry
	prompts  *styles.PromptResolver
	engine   *fluxruntime.Engine
	pipeline *artifact.Pipeline
	limiter  *RateLimiter
	queue    *jobQueue
	logger   *zap.Logger

	journal   Journal
	notifiers []Notifier

	mu   sync.Mutex
	jobs map[string]*Job

	// wake nudges dispatch workers after an enqueue; buffered so a burst of
	// submissions collapses into one wakeup
	wake chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopping bool
}

// Option configures optional scheduler collaborators.
type Option func(*Scheduler)

// WithJournal wires the terminal-state journal.
func WithJournal(j Journal) Option {
	return func(s *Scheduler) { s.journal = j }
}

// WithNotifier registers a transition event sink. May be used repeatedly.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifiers = append(s.notifiers, n) }
}

// New builds a scheduler. Call Start before submitting.
func New(cfg Config, registry *styles.Registry, prompts *styles.PromptResolver,
	engine *fluxruntime.Engine, pipeline *artifact.Pipeline, logger *zap.Logger,
	opts ...Option) (*Scheduler, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:      cfg,
		registry: registry,
		prompts:  prompts,
		engine:   engine,
		pipeline: pipeline,
		limiter:  NewRateLimiter(cfg.RateLimitCount, cfg.RateLimitWindow),
		queue:    newJobQueue(cfg.StarvationCeiling),
		logger:   logger.Named("scheduler"),
		journal:  nopJournal{},
		jobs:     make(map[string]*Job),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the dispatch workers and maintenance loops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
	s.wg.Add(1)
	go s.evictLoop()
	s.limiter.StartCleanupTicker(s.ctx, 5*time.Minute)

	s.logger.Info("scheduler started",
		zap.Int("workers", s.cfg.Workers),
		zap.Int("rate_limit", s.cfg.RateLimitCount),
		zap.Duration("rate_window", s.cfg.RateLimitWindow))
}

// Stop drains the scheduler: no new admissions, workers exit after their
// current job. In-flight renders complete; queued jobs stay queued and are
// lost with the process, which is acceptable because clients poll and retry.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop timed out: %w", ctx.Err())
	}
}

// Submit admits a request. The full rejection policy runs here, before
// anything is queued: shutdown, model availability, rate limit, then style
// authorization. A rejected request never touches the queue or the
// accelerator and is journaled with its taxonomy code.
func (s *Scheduler) Submit(req Request) (string, error) {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}
	jobID := uuid.New().String()

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return "", ErrShuttingDown
	}

	if !s.engine.Available() {
		err := fmt.Errorf("%w: rejected at admission", fluxruntime.ErrModelUnavailable)
		s.journalRejection(jobID, req, err)
		return "", err
	}

	if ok, retryAfter := s.limiter.Allow(req.ClientID); !ok {
		err := fmt.Errorf("%w: retry after %s", ErrRateLimited, retryAfter.Round(time.Second))
		s.journalRejection(jobID, req, err)
		return "", err
	}

	if _, err := s.registry.Authorize(req.StyleID, req.ClientTier); err != nil {
		s.journalRejection(jobID, req, err)
		return "", err
	}

	if len(req.Image) == 0 {
		return "", fmt.Errorf("scheduler: request has no image")
	}

	job := newJob(jobID, req, s.cfg.deadlineFor(req.Resolution, req.SubmittedAt))

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.queue.Push(job)
	s.notify(job, "", nil)

	select {
	case s.wake <- struct{}{}:
	default:
	}

	s.logger.Info("job admitted",
		zap.String("job_id", job.ID),
		zap.String("client_id", req.ClientID),
		zap.String("style_id", req.StyleID),
		zap.String("resolution", req.Resolution.String()),
		zap.Int("queue_depth", s.queue.Len()))
	return job.ID, nil
}

// Poll returns the current status of a job. Terminal jobs return an
// identical snapshot on every call until TTL eviction.
func (s *Scheduler) Poll(jobID string) (Status, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.Snapshot(), nil
}

// Await blocks until the job is terminal or ctx expires, then returns the
// terminal snapshot.
func (s *Scheduler) Await(ctx context.Context, jobID string) (Status, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	select {
	case <-job.Done():
		return job.Snapshot(), nil
	case <-ctx.Done():
		return Status{}, fmt.Errorf("scheduler: await: %w", ctx.Err())
	}
}

// Cancel cancels a job. Queued jobs are removed immediately and for free.
// Dispatched or rendering jobs are canceled best-effort: the in-flight
// render completes (the accelerator cannot be safely interrupted) and its
// result is discarded.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.State().Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, jobID, job.State())
	}

	if s.queue.Remove(jobID) {
		job.setFailure(ErrCanceled)
		if err := job.transition(StateCanceled); err != nil {
			// Lost the race against a dispatcher; fall through to best-effort.
			job.markCanceled()
			return nil
		}
		s.finalize(job)
		return nil
	}

	job.markCanceled()
	s.logger.Info("cancel noted for in-flight job", zap.String("job_id", jobID))
	return nil
}

// ReloadStyles refreshes the style catalog from persistence. The snapshot
// swap happens while holding the accelerator session, so a render never
// observes a catalog change mid-job and a reload never races an adapter
// swap. Returns the active style count after the reload.
func (s *Scheduler) ReloadStyles(ctx context.Context) (int, error) {
	if err := s.engine.Session().Acquire(ctx); err != nil {
		return 0, fmt.Errorf("scheduler: reload styles: %w", err)
	}
	defer s.engine.Session().Release()

	if err := s.registry.Reload(ctx); err != nil {
		return 0, err
	}
	return s.registry.Count(), nil
}

// QueueDepth returns the number of queued jobs.
func (s *Scheduler) QueueDepth() int { return s.queue.Len() }

// ActiveJobs returns how many jobs are tracked (queued, running, or
// terminal-but-not-evicted).
func (s *Scheduler) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// ---------------------------------------------------------------------------
// dispatch

// workerLoop drains the queue. Multiple workers may run; the accelerator
// permit serializes them at the session, which is intentional backpressure
// rather than contention to be tuned away.
func (s *Scheduler) workerLoop(id int) {
	defer s.wg.Done()
	log := s.logger.With(zap.Int("worker", id))

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-time.After(250 * time.Millisecond):
			// Periodic sweep: catches queued-job deadline expiry and
			// anti-starvation promotions even when no submissions arrive.
		}

		for {
			job := s.queue.Pop()
			if job == nil {
				break
			}
			s.dispatch(job, log)
			if s.ctx.Err() != nil {
				return
			}
		}
	}
}

// dispatch drives one job from dequeue to a terminal state.
func (s *Scheduler) dispatch(job *Job, log *zap.Logger) {
	if job.State().Terminal() {
		return
	}

	// Client cancel while queued but after Pop won the race.
	if job.isCanceled() {
		job.setFailure(ErrCanceled)
		if job.transition(StateCanceled) == nil {
			s.finalize(job)
		}
		return
	}

	// Cooperative deadline check at dequeue: an expired job is removed
	// without ever touching the accelerator.
	if time.Now().After(job.Deadline()) {
		job.setFailure(ErrDeadlineExceeded)
		if job.transition(StateExpired) == nil {
			s.finalize(job)
		}
		return
	}

	// Load-shedding downgrade: under depth pressure, lower the resolution
	// one step instead of rejecting. Never below preview, never a different
	// style, always flagged in the result.
	if depth := s.queue.Len(); depth >= s.cfg.QueueDepthDowngrade {
		if job.downgrade() {
			log.Info("resolution downgraded under load",
				zap.String("job_id", job.ID),
				zap.Int("queue_depth", depth),
				zap.String("assigned", job.Assigned().String()))
		}
	}

	if err := job.transition(StateDispatched); err != nil {
		return
	}
	s.notify(job, StateQueued.String(), nil)

	rendered, seed, promptVersion, queueWait, err := s.render(job, log)
	if err != nil {
		job.setFailure(err)
		if job.transition(StateFailed) == nil {
			s.finalize(job)
		}
		return
	}

	if err := job.transition(StateUploading); err != nil {
		return
	}
	s.notify(job, StateRendering.String(), nil)

	// Best-effort cancel: the render ran to completion, the result is
	// discarded rather than delivered.
	if job.isCanceled() {
		job.setFailure(ErrCanceled)
		if job.transition(StateCanceled) == nil {
			s.finalize(job)
		}
		return
	}

	// Cooperative deadline check at upload time.
	if time.Now().After(job.Deadline()) {
		job.setFailure(ErrDeadlineExceeded)
		if job.transition(StateExpired) == nil {
			s.finalize(job)
		}
		return
	}

	out, err := s.pipeline.Persist(job.Request.Image, rendered, job.ID)
	if err != nil {
		job.setFailure(err)
		if job.transition(StateFailed) == nil {
			s.finalize(job)
		}
		return
	}

	result := &Result{
		OriginalURL:   out.OriginalURL,
		URL:           out.URL,
		ThumbnailURL:  out.ThumbnailURL,
		Resolution:    job.Assigned().String(),
		Downgraded:    job.Downgraded(),
		Seed:          seed,
		ProcessingMs:  time.Since(job.Request.SubmittedAt).Milliseconds(),
		ModelID:       s.engine.Session().Snapshot().ModelID,
		StyleID:       job.Request.StyleID,
		PromptVersion: promptVersion,
	}
	job.setResult(result)
	if err := job.transition(StateCompleted); err != nil {
		return
	}
	s.finalize(job)

	log.Info("job completed",
		zap.String("job_id", job.ID),
		zap.String("style_id", job.Request.StyleID),
		zap.String("resolution", result.Resolution),
		zap.Bool("downgraded", result.Downgraded),
		zap.Int64("seed", result.Seed),
		zap.Duration("queue_wait", queueWait),
		zap.Int64("processing_ms", result.ProcessingMs))
}

// render acquires the accelerator session and runs EnsureStyle+Infer,
// retrying exactly once at the next-lower tier on memory exhaustion. The
// session is held across the retry: the adapter is already fused and
// releasing between attempts would only invite an avoidable swap.
func (s *Scheduler) render(job *Job, log *zap.Logger) (out []byte, seed int64, promptVersion string, queueWait time.Duration, err error) {
	waitStart := time.Now()
	if err := s.engine.Session().Acquire(s.ctx); err != nil {
		return nil, 0, "", 0, err
	}
	defer s.engine.Session().Release()
	queueWait = time.Since(waitStart)

	desc, err := s.registry.Resolve(job.Request.StyleID)
	if err != nil {
		// The style vanished in a reload between submit and dispatch.
		return nil, 0, "", queueWait, err
	}

	prompt, err := s.prompts.Resolve(s.ctx, desc.ID, job.Request.PromptVersion)
	if err != nil {
		return nil, 0, "", queueWait, err
	}

	if err := s.engine.EnsureStyle(s.ctx, desc); err != nil {
		return nil, 0, "", queueWait, err
	}

	for {
		if err := job.transition(StateRendering); err != nil {
			return nil, 0, "", queueWait, fmt.Errorf("scheduler: %w", err)
		}
		s.notify(job, StateDispatched.String(), nil)

		spec := s.cfg.Tiers[job.Assigned()]
		params := fluxruntime.RenderParams{
			InitImage:      job.Request.Image,
			Prompt:         prompt.Positive,
			NegativePrompt: prompt.Negative,
			Width:          spec.Width,
			Height:         spec.Height,
			Strength:       s.cfg.Strength,
			Steps:          s.cfg.DefaultSteps,
			GuidanceScale:  s.cfg.GuidanceScale,
			Seed:           job.Request.Seed,
		}

		rendered, usedSeed, renderErr := s.engine.Infer(s.ctx, params)
		if renderErr == nil {
			return rendered, usedSeed, prompt.Version, queueWait, nil
		}

		// One automatic recovery exists: memory exhaustion retried once at
		// the next-lower tier. Everything else surfaces as-is.
		if !retryableMemoryError(renderErr) || job.retryCount() >= 1 {
			return nil, 0, "", queueWait, renderErr
		}
		if !job.downgrade() {
			return nil, 0, "", queueWait, renderErr
		}
		job.consumeRetry()

		if err := job.transition(StateDispatched); err != nil {
			return nil, 0, "", queueWait, renderErr
		}
		s.notify(job, StateRendering.String(), nil)
		log.Warn("accelerator memory exhausted, retrying lower",
			zap.String("job_id", job.ID),
			zap.String("assigned", job.Assigned().String()))
	}
}

// retryableMemoryError identifies the one transient failure class.
func retryableMemoryError(err error) bool {
	return err != nil && Code(err) == CodeAcceleratorMemory
}

// ---------------------------------------------------------------------------
// bookkeeping

// finalize journals and notifies a job that just went terminal.
func (s *Scheduler) finalize(job *Job) {
	st := job.State()
	errCode := ""
	seed := int64(0)
	if f := job.Failure(); f != nil {
		errCode = Code(f)
	}
	if r := job.Result(); r != nil {
		seed = r.Seed
	}

	s.journal.Record(core.TransformationRecord{
		JobID:         job.ID,
		ClientID:      job.Request.ClientID,
		StyleID:       job.Request.StyleID,
		RequestedTier: job.Request.Resolution.String(),
		AssignedTier:  job.Assigned().String(),
		Downgraded:    job.Downgraded(),
		Seed:          seed,
		DurationMs:    time.Since(job.Request.SubmittedAt).Milliseconds(),
		State:         st.String(),
		ErrorCode:     errCode,
		CreatedAt:     time.Now(),
	})
	s.notify(job, "", job.Failure())
}

// journalRejection records a submission refused before a job existed, and
// publishes the rejection to the notifiers.
func (s *Scheduler) journalRejection(jobID string, req Request, cause error) {
	for _, n := range s.notifiers {
		n.JobTransition(Event{
			JobID:      jobID,
			ClientID:   req.ClientID,
			StyleID:    req.StyleID,
			State:      StateRejected.String(),
			Resolution: req.Resolution.String(),
			QueueDepth: s.queue.Len(),
			ErrorCode:  Code(cause),
			Terminal:   true,
			At:         time.Now(),
		})
	}
	s.journal.Record(core.TransformationRecord{
		JobID:         jobID,
		ClientID:      req.ClientID,
		StyleID:       req.StyleID,
		RequestedTier: req.Resolution.String(),
		AssignedTier:  req.Resolution.String(),
		State:         StateRejected.String(),
		ErrorCode:     Code(cause),
		CreatedAt:     time.Now(),
	})
}

// notify publishes a transition event to every sink.
func (s *Scheduler) notify(job *Job, from string, cause error) {
	if len(s.notifiers) == 0 {
		return
	}
	state := job.State()
	ev := Event{
		JobID:      job.ID,
		ClientID:   job.Request.ClientID,
		StyleID:    job.Request.StyleID,
		From:       from,
		State:      state.String(),
		Resolution: job.Assigned().String(),
		Downgraded: job.Downgraded(),
		QueueDepth: s.queue.Len(),
		ErrorCode:  Code(cause),
		Terminal:   state.Terminal(),
		At:         time.Now(),
	}
	if ev.Terminal {
		ev.DurationMs = time.Since(job.Request.SubmittedAt).Milliseconds()
	}
	for _, n := range s.notifiers {
		n.JobTransition(ev)
	}
}

// evictLoop drops terminal jobs past their TTL so the active set stays
// bounded while polls remain idempotent within the window.
func (s *Scheduler) evictLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.TerminalTTL)
			s.mu.Lock()
			for id, job := range s.jobs {
				job.mu.Lock()
				evict := job.state.Terminal() && job.completedAt.Before(cutoff)
				job.mu.Unlock()
				if evict {
					delete(s.jobs, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
