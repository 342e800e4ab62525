package db

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestAsyncWriter_ProcessesWrites verifies queued writes reach the handler.
func TestAsyncWriter_ProcessesWrites(t *testing.T) {
	var processed atomic.Int64
	writer := NewAsyncWriter(func(op WriteOperation) error {
		processed.Add(1)
		return nil
	})
	writer.Start()

	for i := 0; i < 10; i++ {
		if !writer.Write(i) {
			t.Fatalf("Write(%d) returned false", i)
		}
	}
	writer.Stop()

	if got := processed.Load(); got != 10 {
		t.Errorf("processed %d writes, want 10", got)
	}
}

// TestAsyncWriter_WriteBeforeStart queues without processing.
func TestAsyncWriter_WriteBeforeStart(t *testing.T) {
	writer := NewAsyncWriter(func(op WriteOperation) error { return nil })

	if writer.IsStarted() {
		t.Error("IsStarted() true before Start")
	}
	if !writer.Write("queued") {
		t.Error("Write() before Start returned false")
	}
	if writer.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", writer.Pending())
	}
}

// TestAsyncWriter_FullBufferRejects returns false instead of blocking.
func TestAsyncWriter_FullBufferRejects(t *testing.T) {
	writer := NewAsyncWriterWithConfig(
		func(op WriteOperation) error { return nil },
		AsyncWriterConfig{ChannelCapacity: 2, DrainTimeout: time.Second},
	)
	// Not started: nothing drains the buffer

	if !writer.Write(1) || !writer.Write(2) {
		t.Fatal("writes within capacity failed")
	}
	if writer.Write(3) {
		t.Error("Write() beyond capacity returned true")
	}
}

// TestAsyncWriter_StopDrainsPending verifies buffered writes land during Stop.
func TestAsyncWriter_StopDrainsPending(t *testing.T) {
	var processed atomic.Int64
	writer := NewAsyncWriter(func(op WriteOperation) error {
		processed.Add(1)
		return nil
	})

	// Queue before starting so everything is buffered
	for i := 0; i < 5; i++ {
		writer.Write(i)
	}
	writer.Start()
	writer.Stop()

	if got := processed.Load(); got != 5 {
		t.Errorf("processed %d writes after Stop, want 5", got)
	}
}

// TestAsyncWriter_HandlerErrorDoesNotStopProcessing tolerates failures.
func TestAsyncWriter_HandlerErrorDoesNotStopProcessing(t *testing.T) {
	var processed atomic.Int64
	writer := NewAsyncWriter(func(op WriteOperation) error {
		processed.Add(1)
		if op.Data.(int)%2 == 0 {
			return errTestHandler
		}
		return nil
	})
	writer.Start()

	for i := 0; i < 6; i++ {
		writer.Write(i)
	}
	writer.Stop()

	if got := processed.Load(); got != 6 {
		t.Errorf("processed %d writes, want 6 (errors must not halt the loop)", got)
	}
}

var errTestHandler = &testHandlerError{}

type testHandlerError struct{}

func (*testHandlerError) Error() string { return "handler failed" }

// TestAsyncWriter_ConcurrentWrites exercises the queue from many goroutines.
func TestAsyncWriter_ConcurrentWrites(t *testing.T) {
	var processed atomic.Int64
	writer := NewAsyncWriterWithConfig(
		func(op WriteOperation) error {
			processed.Add(1)
			return nil
		},
		AsyncWriterConfig{ChannelCapacity: 1000, DrainTimeout: time.Second},
	)
	writer.Start()

	var wg sync.WaitGroup
	const writers, perWriter = 10, 50
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				writer.Write(j)
			}
		}()
	}
	wg.Wait()
	writer.Stop()

	if got := processed.Load(); got != writers*perWriter {
		t.Errorf("processed %d writes, want %d", got, writers*perWriter)
	}
}

// TestAsyncWriter_StopWithTimeout stops promptly when idle.
func TestAsyncWriter_StopWithTimeout(t *testing.T) {
	writer := NewAsyncWriter(func(op WriteOperation) error { return nil })
	writer.Start()

	if !writer.StopWithTimeout(time.Second) {
		t.Error("StopWithTimeout() timed out on an idle writer")
	}
}

// TestAsyncWriter_DoubleStart is a no-op.
func TestAsyncWriter_DoubleStart(t *testing.T) {
	var processed atomic.Int64
	writer := NewAsyncWriter(func(op WriteOperation) error {
		processed.Add(1)
		return nil
	})
	writer.Start()
	writer.Start()

	writer.Write("once")
	writer.Stop()

	if got := processed.Load(); got != 1 {
		t.Errorf("processed %d writes, want 1 (double Start must not double-process)", got)
	}
}
