package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"ai_backend/artifact"
	"ai_backend/core"
	"ai_backend/fluxruntime"
	"ai_backend/styles"
)

// scriptedRenderer wraps the deterministic local renderer with per-call
// failure injection and an optional fixed latency, for exercising the
// memory-downgrade retry and deadline policies.
type scriptedRenderer struct {
	*fluxruntime.LocalRenderer

	delay time.Duration

	mu       sync.Mutex
	failures []error
	renders  int
}

func (r *scriptedRenderer) Render(ctx context.Context, params fluxruntime.RenderParams) ([]byte, error) {
	r.mu.Lock()
	r.renders++
	var fail error
	if len(r.failures) > 0 {
		fail = r.failures[0]
		r.failures = r.failures[1:]
	}
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if fail != nil {
		return nil, fail
	}
	return r.LocalRenderer.Render(ctx, params)
}

func (r *scriptedRenderer) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// staticLoader serves the compiled-in styles as the persistence snapshot.
type staticLoader struct{}

func (staticLoader) LoadStyles(context.Context) ([]styles.Descriptor, error) {
	return styles.DefaultDescriptors(), nil
}

// recordingJournal captures terminal records.
type recordingJournal struct {
	mu   sync.Mutex
	recs []core.TransformationRecord
}

func (j *recordingJournal) Record(rec core.TransformationRecord) {
	j.mu.Lock()
	j.recs = append(j.recs, rec)
	j.mu.Unlock()
}

func (j *recordingJournal) records() []core.TransformationRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]core.TransformationRecord(nil), j.recs...)
}

type testHarness struct {
	sched    *Scheduler
	engine   *fluxruntime.Engine
	renderer *scriptedRenderer
	journal  *recordingJournal
}

// newHarness assembles a scheduler over real collaborators: default style
// registry, full resolver chain, local renderer, filesystem artifact store.
func newHarness(t *testing.T, mutate func(*Config), loadModel bool) *testHarness {
	t.Helper()

	adapterDir := t.TempDir()
	for _, d := range styles.DefaultDescriptors() {
		path := filepath.Join(adapterDir, d.ArtifactPath)
		if err := os.WriteFile(path, []byte("weights-"+d.ID), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	renderer := &scriptedRenderer{LocalRenderer: fluxruntime.NewLocalRenderer("flux.1-schnell")}
	engine := fluxruntime.NewEngine(fluxruntime.NewSession(), renderer, adapterDir, zap.NewNop())
	if loadModel {
		if err := engine.LoadModel(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	registry := styles.NewRegistry(staticLoader{}, zap.NewNop())
	override, err := styles.NewOverrideSource("")
	if err != nil {
		t.Fatal(err)
	}
	prompts := styles.NewPromptResolver(zap.NewNop(),
		override, styles.NewStoreSource(nil), styles.DefaultSource{})

	store, err := artifact.NewFSStore(t.TempDir(), "http://localhost:8080/artifacts")
	if err != nil {
		t.Fatal(err)
	}
	pipeline := artifact.NewPipeline(store, zap.NewNop())

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.TerminalTTL = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}

	journal := &recordingJournal{}
	sched, err := New(cfg, registry, prompts, engine, pipeline, zap.NewNop(),
		WithJournal(journal))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})

	return &testHarness{sched: sched, engine: engine, renderer: renderer, journal: journal}
}

func submitImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testRequest(clientID string, tier styles.Tier, styleID string, res ResolutionTier, seed int64, img []byte) Request {
	return Request{
		ClientID:   clientID,
		ClientTier: tier,
		Image:      img,
		StyleID:    styleID,
		Resolution: res,
		Seed:       seed,
	}
}

func awaitTerminal(t *testing.T, s *Scheduler, jobID string) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := s.Await(ctx, jobID)
	if err != nil {
		t.Fatalf("Await(%s): %v", jobID, err)
	}
	return st
}

func TestSubmitCompletesPreviewHasselblad(t *testing.T) {
	h := newHarness(t, nil, true)
	h.sched.Start()

	id, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierPreview, -1, submitImage(t)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := awaitTerminal(t, h.sched, id)
	if st.State != "completed" {
		t.Fatalf("state = %s (%s), want completed", st.State, st.Error)
	}
	r := st.Result
	if r == nil {
		t.Fatal("completed job has no result")
	}
	if r.Resolution != "preview" {
		t.Errorf("resolution = %s, want preview", r.Resolution)
	}
	if r.Downgraded {
		t.Error("unloaded scheduler downgraded a preview job")
	}
	if r.StyleID != "hasselblad" {
		t.Errorf("style = %s, want hasselblad", r.StyleID)
	}
	if r.Seed < 0 {
		t.Errorf("seed = %d, want generated non-negative seed", r.Seed)
	}
	if r.OriginalURL == "" || r.URL == "" || r.ThumbnailURL == "" {
		t.Errorf("missing artifact urls: %q %q %q", r.OriginalURL, r.URL, r.ThumbnailURL)
	}
	if !strings.Contains(r.OriginalURL, "/original/") {
		t.Errorf("original url = %s, want an original/ key", r.OriginalURL)
	}
	if r.PromptVersion != styles.DefaultPromptVersion {
		t.Errorf("prompt version = %s, want %s", r.PromptVersion, styles.DefaultPromptVersion)
	}
	if r.ModelID != "flux.1-schnell" {
		t.Errorf("model id = %s", r.ModelID)
	}

	// Repeated polls of a terminal job are idempotent reads.
	again, err := h.sched.Poll(id)
	if err != nil {
		t.Fatal(err)
	}
	if *again.Result != *r {
		t.Error("second poll returned a different result")
	}
}

// contentHash extracts the content-derived hash segment of an artifact URL.
// Identical render bytes produce identical hashes regardless of job id.
func contentHash(t *testing.T, url string) string {
	t.Helper()
	base := url[strings.LastIndex(url, "/")+1:]
	i := strings.Index(base, "-")
	if i <= 0 {
		t.Fatalf("unexpected artifact name %q", base)
	}
	return base[:i]
}

func TestExplicitSeedIsDeterministic(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RateLimitCount = 100 }, true)
	h.sched.Start()
	img := submitImage(t)

	var hashes []string
	for i := 0; i < 2; i++ {
		id, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierPreview, 271828, img))
		if err != nil {
			t.Fatal(err)
		}
		st := awaitTerminal(t, h.sched, id)
		if st.State != "completed" {
			t.Fatalf("state = %s (%s)", st.State, st.Error)
		}
		if st.Result.Seed != 271828 {
			t.Errorf("seed = %d, want the explicit 271828", st.Result.Seed)
		}
		hashes = append(hashes, contentHash(t, st.Result.URL))
	}

	if hashes[0] != hashes[1] {
		t.Error("identical request with identical seed produced different output bytes")
	}
}

func TestPremiumStyleForbiddenWithZeroLockAcquisitions(t *testing.T) {
	h := newHarness(t, nil, true)
	h.sched.Start()
	baseline := h.engine.Session().Acquisitions()

	_, err := h.sched.Submit(testRequest("client-free", styles.TierFree, "leica_m", TierPreview, -1, submitImage(t)))
	if !errors.Is(err, styles.ErrForbidden) {
		t.Fatalf("Submit = %v, want ErrForbidden", err)
	}

	if got := h.engine.Session().Acquisitions(); got != baseline {
		t.Errorf("forbidden submission acquired the accelerator (%d -> %d)", baseline, got)
	}

	// Rejection is journaled with its taxonomy code.
	recs := h.journal.records()
	if len(recs) != 1 || recs[0].ErrorCode != CodeForbidden || recs[0].State != "rejected" {
		t.Errorf("journal records = %+v", recs)
	}
}

func TestUnknownStyleNotFound(t *testing.T) {
	h := newHarness(t, nil, true)
	h.sched.Start()

	_, err := h.sched.Submit(testRequest("client-1", styles.TierPremium, "polaroid", TierPreview, -1, submitImage(t)))
	if !errors.Is(err, styles.ErrStyleNotFound) {
		t.Fatalf("Submit = %v, want ErrStyleNotFound", err)
	}
}

func TestRateLimitedSubmission(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RateLimitCount = 2 }, true)
	h.sched.Start()
	img := submitImage(t)

	for i := 0; i < 2; i++ {
		if _, err := h.sched.Submit(testRequest("greedy", styles.TierFree, "hasselblad", TierPreview, -1, img)); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	_, err := h.sched.Submit(testRequest("greedy", styles.TierFree, "hasselblad", TierPreview, -1, img))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third submit = %v, want ErrRateLimited", err)
	}

	// Another client is unaffected.
	if _, err := h.sched.Submit(testRequest("patient", styles.TierFree, "hasselblad", TierPreview, -1, img)); err != nil {
		t.Errorf("other client rate limited: %v", err)
	}
}

func TestMemoryExhaustionRetriesOnceLower(t *testing.T) {
	h := newHarness(t, nil, true)
	h.renderer.failures = []error{fluxruntime.ErrAcceleratorMemory}
	h.sched.Start()

	id, err := h.sched.Submit(testRequest("client-1", styles.TierPremium, "hasselblad", TierHigh, -1, submitImage(t)))
	if err != nil {
		t.Fatal(err)
	}

	st := awaitTerminal(t, h.sched, id)
	if st.State != "completed" {
		t.Fatalf("state = %s (%s), want completed after downgrade retry", st.State, st.Error)
	}
	if st.Result.Resolution != "standard" {
		t.Errorf("resolution = %s, want standard (one step below high)", st.Result.Resolution)
	}
	if !st.Result.Downgraded {
		t.Error("downgrade retry not flagged in result")
	}
	if got := h.renderer.renderCount(); got != 2 {
		t.Errorf("render calls = %d, want 2", got)
	}
}

func TestSecondMemoryFailureTerminatesAsFailed(t *testing.T) {
	h := newHarness(t, nil, true)
	h.renderer.failures = []error{fluxruntime.ErrAcceleratorMemory, fluxruntime.ErrAcceleratorMemory}
	h.sched.Start()

	id, err := h.sched.Submit(testRequest("client-1", styles.TierPremium, "hasselblad", TierHigh, -1, submitImage(t)))
	if err != nil {
		t.Fatal(err)
	}

	st := awaitTerminal(t, h.sched, id)
	if st.State != "failed" {
		t.Fatalf("state = %s, want failed", st.State)
	}
	if st.ErrorCode != CodeAcceleratorMemory {
		t.Errorf("error code = %s, want %s", st.ErrorCode, CodeAcceleratorMemory)
	}
	// Exactly one automatic downgrade: high -> standard, no further.
	if got := h.renderer.renderCount(); got != 2 {
		t.Errorf("render calls = %d, want 2 (no second retry)", got)
	}
}

func TestQueuedDeadlineExpiresWithoutAcceleratorTouch(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		tiers := DefaultTierTable()
		tiers[TierPreview] = TierSpec{Width: 256, Height: 256, ExpectedLatency: time.Millisecond}
		c.Tiers = tiers
		c.DeadlineFactor = 1
	}, true)
	baseline := h.engine.Session().Acquisitions()

	// Submit before starting workers so the job sits queued past its deadline.
	id, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierPreview, -1, submitImage(t)))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	h.sched.Start()

	st := awaitTerminal(t, h.sched, id)
	if st.State != "expired" {
		t.Fatalf("state = %s, want expired", st.State)
	}
	if st.ErrorCode != CodeDeadlineExceeded {
		t.Errorf("error code = %s, want %s", st.ErrorCode, CodeDeadlineExceeded)
	}
	if got := h.engine.Session().Acquisitions(); got != baseline {
		t.Errorf("expired job touched the accelerator (%d -> %d)", baseline, got)
	}
	if got := h.renderer.renderCount(); got != 0 {
		t.Errorf("render calls = %d, want 0", got)
	}
}

func TestDeadlineExpiryAtUploadAttachesNoResult(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		tiers := DefaultTierTable()
		tiers[TierPreview] = TierSpec{Width: 256, Height: 256, ExpectedLatency: 50 * time.Millisecond}
		c.Tiers = tiers
		c.DeadlineFactor = 1
	}, true)
	// The render outlives the deadline, so the job passes the dequeue check
	// but fails the upload-time check.
	h.renderer.delay = 300 * time.Millisecond
	h.sched.Start()

	id, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierPreview, -1, submitImage(t)))
	if err != nil {
		t.Fatal(err)
	}

	st := awaitTerminal(t, h.sched, id)
	if st.State != "expired" {
		t.Fatalf("state = %s, want expired", st.State)
	}
	if st.ErrorCode != CodeDeadlineExceeded {
		t.Errorf("error code = %s, want %s", st.ErrorCode, CodeDeadlineExceeded)
	}
	// The render's output is discarded, never persisted or attached.
	if st.Result != nil {
		t.Errorf("expired job carries a result: %+v", st.Result)
	}
	if got := h.renderer.renderCount(); got != 1 {
		t.Errorf("render calls = %d, want 1", got)
	}
}

func TestReloadStylesWaitsForAcceleratorSession(t *testing.T) {
	h := newHarness(t, nil, true)

	if err := h.engine.Session().Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.sched.ReloadStyles(context.Background())
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("catalog reload finished while the accelerator session was held")
	case <-time.After(100 * time.Millisecond):
	}

	h.engine.Session().Release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ReloadStyles: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("catalog reload never ran after the session was released")
	}

	if got := h.sched.registry.Count(); got != len(styles.DefaultDescriptors()) {
		t.Errorf("styles after reload = %d, want %d", got, len(styles.DefaultDescriptors()))
	}
}

func TestReloadStylesHonorsContext(t *testing.T) {
	h := newHarness(t, nil, true)

	if err := h.engine.Session().Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer h.engine.Session().Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.sched.ReloadStyles(ctx); !errors.Is(err, fluxruntime.ErrAcquireTimeout) {
		t.Errorf("ReloadStyles = %v, want ErrAcquireTimeout", err)
	}
}

func TestCancelQueuedJobIsImmediate(t *testing.T) {
	h := newHarness(t, nil, true)
	// Workers not started: the job stays queued.

	id, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierPreview, -1, submitImage(t)))
	if err != nil {
		t.Fatal(err)
	}

	if err := h.sched.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	st, err := h.sched.Poll(id)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != "canceled" {
		t.Errorf("state = %s, want canceled", st.State)
	}
	if st.ErrorCode != CodeCanceled {
		t.Errorf("error code = %s, want %s", st.ErrorCode, CodeCanceled)
	}

	// Cancel of a terminal job is refused.
	if err := h.sched.Cancel(id); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("second Cancel = %v, want ErrJobTerminal", err)
	}
}

func TestQueueDepthTriggersDowngrade(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.QueueDepthDowngrade = 1
		c.RateLimitCount = 100
	}, true)
	img := submitImage(t)

	// Two jobs queued before workers start: the first dispatch sees depth 1
	// (the second job still waiting) and sheds load by downgrading.
	id1, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierHigh, -1, img))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierHigh, -1, img))
	if err != nil {
		t.Fatal(err)
	}
	h.sched.Start()

	st1 := awaitTerminal(t, h.sched, id1)
	st2 := awaitTerminal(t, h.sched, id2)
	if st1.State != "completed" || st2.State != "completed" {
		t.Fatalf("states: %s, %s", st1.State, st2.State)
	}

	if st1.Result.Resolution != "standard" || !st1.Result.Downgraded {
		t.Errorf("first job: resolution %s downgraded %v, want standard/true",
			st1.Result.Resolution, st1.Result.Downgraded)
	}
	// The queue was empty by the second dispatch; no downgrade.
	if st2.Result.Downgraded {
		t.Errorf("second job downgraded with an empty queue")
	}
}

func TestConcurrentSubmissionsAllReachTerminalState(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Workers = 4
		c.RateLimitCount = 100
	}, true)
	h.sched.Start()
	img := submitImage(t)
	baseline := h.engine.Session().Acquisitions()

	const n = 50
	ids := make([]string, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tier := styles.TierFree
			if i%2 == 0 {
				tier = styles.TierPremium
			}
			id, err := h.sched.Submit(testRequest(
				fmt.Sprintf("client-%d", i), tier, "hasselblad", TierPreview, -1, img))
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		st := awaitTerminal(t, h.sched, id)
		if st.State != "completed" {
			t.Errorf("job %s state = %s (%s)", id, st.State, st.Error)
		}
	}

	// One session acquisition per render; the session itself guarantees at
	// most one concurrent holder.
	if got := h.engine.Session().Acquisitions() - baseline; got != int64(len(ids)) {
		t.Errorf("session acquisitions = %d, want %d", got, len(ids))
	}
}

func TestModelUnavailableRejectsAtSubmit(t *testing.T) {
	h := newHarness(t, nil, false) // base model never loaded
	h.sched.Start()

	_, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierPreview, -1, submitImage(t)))
	if !errors.Is(err, fluxruntime.ErrModelUnavailable) {
		t.Fatalf("Submit = %v, want ErrModelUnavailable", err)
	}

	recs := h.journal.records()
	if len(recs) != 1 || recs[0].ErrorCode != CodeModelUnavailable {
		t.Errorf("journal records = %+v", recs)
	}
}

func TestPollUnknownJob(t *testing.T) {
	h := newHarness(t, nil, true)

	if _, err := h.sched.Poll("no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Poll = %v, want ErrJobNotFound", err)
	}
	if err := h.sched.Cancel("no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel = %v, want ErrJobNotFound", err)
	}
}

func TestJournalRecordsCompletedJob(t *testing.T) {
	h := newHarness(t, nil, true)
	h.sched.Start()

	id, err := h.sched.Submit(testRequest("client-1", styles.TierFree, "hasselblad", TierPreview, 7, submitImage(t)))
	if err != nil {
		t.Fatal(err)
	}
	awaitTerminal(t, h.sched, id)

	recs := h.journal.records()
	if len(recs) != 1 {
		t.Fatalf("journal has %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.JobID != id || rec.State != "completed" || rec.Seed != 7 ||
		rec.StyleID != "hasselblad" || rec.ErrorCode != "" {
		t.Errorf("journal record = %+v", rec)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrRateLimited, CodeRateLimited},
		{styles.ErrForbidden, CodeForbidden},
		{styles.ErrStyleNotFound, CodeNotFound},
		{ErrJobNotFound, CodeNotFound},
		{ErrDeadlineExceeded, CodeDeadlineExceeded},
		{fluxruntime.ErrAcceleratorMemory, CodeAcceleratorMemory},
		{fluxruntime.ErrModelUnavailable, CodeModelUnavailable},
		{fluxruntime.ErrStyleUnavailable, CodeStyleUnavailable},
		{ErrCanceled, CodeCanceled},
		{errors.New("something odd"), CodeInternal},
		{fmt.Errorf("wrapped: %w", ErrRateLimited), CodeRateLimited},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
