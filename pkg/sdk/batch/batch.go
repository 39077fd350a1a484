package batch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// DefaultMaxBatchSize is the number of write requests sent per store call
const DefaultMaxBatchSize = 50

// ErrStoreWriteFailure wraps any error returned by the store client
var ErrStoreWriteFailure = errors.New("store write failure")

// Config holds configuration for the batcher
type Config struct {
	MaxBatchSize int

	// OnFlush, if set, is called with each batch after the store accepted it.
	// The slice must not be retained.
	OnFlush func(batch []metrics.WriteRequest, took time.Duration)
}

// Batcher groups write requests into fixed-size batches and hands each full
// batch to the store synchronously. It never retries and never drops points:
// a failed batch is reported to the caller.
type Batcher struct {
	config Config
	writer storage.Writer

	pending []metrics.WriteRequest
	batches int
	written int
	mu      sync.Mutex
}

// New creates a new batcher
func New(writer storage.Writer, config Config) *Batcher {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultMaxBatchSize
	}
	return &Batcher{
		config:  config,
		writer:  writer,
		pending: make([]metrics.WriteRequest, 0, config.MaxBatchSize),
	}
}

// Add buffers a write request and flushes once the batch is full
func (b *Batcher) Add(ctx context.Context, wr metrics.WriteRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, wr)
	if len(b.pending) < b.config.MaxBatchSize {
		return nil
	}
	return b.flushLocked(ctx)
}

// Flush writes whatever is buffered, even a partial batch
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// WriteAll drains seq through the batcher and flushes the remainder.
// It returns how many requests reached the store. An error from seq is
// returned unchanged and the requests still buffered are discarded.
func (b *Batcher) WriteAll(ctx context.Context, seq iter.Seq2[metrics.WriteRequest, error]) (int, error) {
	start := b.Written()

	for wr, err := range seq {
		if err != nil {
			b.discard()
			return b.Written() - start, err
		}
		if err := b.Add(ctx, wr); err != nil {
			return b.Written() - start, err
		}
	}

	if err := b.Flush(ctx); err != nil {
		return b.Written() - start, err
	}
	return b.Written() - start, nil
}

// Batches returns how many batches were written successfully
func (b *Batcher) Batches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches
}

// Written returns how many write requests reached the store
func (b *Batcher) Written() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

// Pending returns the number of buffered requests not yet written
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) discard() {
	b.mu.Lock()
	b.pending = b.pending[:0]
	b.mu.Unlock()
}

// flushLocked sends the buffer to the store. Caller must hold b.mu.
func (b *Batcher) flushLocked(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	batch := make([]metrics.WriteRequest, len(b.pending))
	copy(batch, b.pending)
	b.pending = b.pending[:0]

	start := time.Now()
	if err := b.writer.Write(ctx, batch); err != nil {
		return fmt.Errorf("%w: batch %d (%d points): %v", ErrStoreWriteFailure, b.batches+1, len(batch), err)
	}

	b.batches++
	b.written += len(batch)
	if b.config.OnFlush != nil {
		b.config.OnFlush(batch, time.Since(start))
	}
	return nil
}
