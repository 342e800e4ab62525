package db

import (
	"context"
	"sync"
	"time"
)

// DefaultChannelCapacity is the default buffer size for async write channels.
const DefaultChannelCapacity = 100

// DefaultDrainTimeout is the maximum time to wait for pending writes during shutdown.
const DefaultDrainTimeout = 30 * time.Second

// WriteOperation is a queued database write.
type WriteOperation struct {
	// Data holds the write payload
	Data interface{}
	// Timestamp when the operation was queued
	Timestamp time.Time
}

// WriteHandler processes one queued write. Implementations handle their own
// error logging; a returned error does not stop the processor.
type WriteHandler func(op WriteOperation) error

// AsyncWriter decouples the render path from SQLite latency: callers queue
// writes on a buffered channel and a background goroutine lands them.
// The journal is append-only telemetry, so a bounded buffer with a
// synchronous fallback (see JournalStore.Record) is the right shape.
type AsyncWriter struct {
	writeChan chan WriteOperation
	handler   WriteHandler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	mu        sync.Mutex
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	// ChannelCapacity is the buffer size for pending writes
	ChannelCapacity int
	// DrainTimeout is the maximum wait time during shutdown
	DrainTimeout time.Duration
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

// NewAsyncWriter creates an async writer with default configuration.
func NewAsyncWriter(handler WriteHandler) *AsyncWriter {
	return NewAsyncWriterWithConfig(handler, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig creates an async writer with custom configuration.
func NewAsyncWriterWithConfig(handler WriteHandler, config AsyncWriterConfig) *AsyncWriter {
	ctx, cancel := context.WithCancel(context.Background())

	return &AsyncWriter{
		writeChan: make(chan WriteOperation, config.ChannelCapacity),
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins background processing. Must be called before queued writes
// are landed; returns immediately.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

func (w *AsyncWriter) processWrites() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			// Drain what is already buffered before exiting
			w.drainChannel()
			return
		case op, ok := <-w.writeChan:
			if !ok {
				return
			}
			_ = w.handler(op)
		}
	}
}

func (w *AsyncWriter) drainChannel() {
	for {
		select {
		case op, ok := <-w.writeChan:
			if !ok {
				return
			}
			_ = w.handler(op)
		default:
			return
		}
	}
}

// Write queues a write operation. Non-blocking: returns false when the
// buffer is full, leaving the fallback decision to the caller.
func (w *AsyncWriter) Write(data interface{}) bool {
	op := WriteOperation{
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case w.writeChan <- op:
		return true
	default:
		return false
	}
}

// WriteWithTimeout queues a write, waiting up to timeout for buffer space.
func (w *AsyncWriter) WriteWithTimeout(data interface{}, timeout time.Duration) bool {
	op := WriteOperation{
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case w.writeChan <- op:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Pending returns the number of operations waiting in the buffer.
func (w *AsyncWriter) Pending() int {
	return len(w.writeChan)
}

// Stop signals the processor to stop and waits for pending writes to drain.
func (w *AsyncWriter) Stop() {
	w.cancel()
	w.wg.Wait()
}

// StopWithTimeout stops the writer with a maximum wait.
// Returns true if stopped gracefully, false if timed out.
func (w *AsyncWriter) StopWithTimeout(timeout time.Duration) bool {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsStarted reports whether the background processor is running.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}
