package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/ir"
)

// ErrJournalClosed is returned by Flush after Close.
var ErrJournalClosed = errors.New("journal closed")

// Writer persists batches. *Store implements it.
type Writer interface {
	WriteBatch(ctx context.Context, b Batch) error
}

// Journal moves committed records to a Writer off the caller's path.
//
// Enqueue calls never block on I/O: records are appended to a pending
// batch and a single drain goroutine writes them in enqueue order. Callers
// enqueue from inside their commit critical section, so the durable order
// matches the in-memory commit order.
//
// A batch that still fails after retries makes the journal sticky: later
// records are dropped so the durable state stays a consistent prefix of the
// in-memory state, and Flush reports the error.
type Journal struct {
	w      Writer
	logger *zap.Logger

	retries int
	backoff time.Duration

	onDepth   func(pending int)
	onFailure func(err error)

	mu       sync.Mutex
	pending  Batch
	enqueued uint64
	settled  uint64
	progress chan struct{}
	err      error
	closed   bool

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithRetries sets how many times a failed batch is retried and the base
// backoff between attempts. Backoff doubles per attempt.
func WithRetries(n int, backoff time.Duration) JournalOption {
	return func(j *Journal) {
		j.retries = n
		j.backoff = backoff
	}
}

// WithDepthObserver reports the pending record count after each change.
func WithDepthObserver(f func(pending int)) JournalOption {
	return func(j *Journal) { j.onDepth = f }
}

// WithFailureObserver is called once per batch that exhausts its retries.
func WithFailureObserver(f func(err error)) JournalOption {
	return func(j *Journal) { j.onFailure = f }
}

// WithJournalLogger sets the logger. Defaults to zap.NewNop().
func WithJournalLogger(l *zap.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// NewJournal starts the drain goroutine. Close must be called to stop it.
func NewJournal(w Writer, opts ...JournalOption) *Journal {
	j := &Journal{
		w:        w,
		logger:   zap.NewNop(),
		retries:  3,
		backoff:  50 * time.Millisecond,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With(zap.String("component", "journal"))
	go j.run()
	return j
}

// EnqueueAssets schedules newly inserted assets for persistence.
func (j *Journal) EnqueueAssets(assets []ir.Asset) {
	j.enqueue(func(b *Batch) { b.Assets = append(b.Assets, assets...) }, len(assets))
}

// EnqueueRun schedules a registered or updated run for persistence.
func (j *Journal) EnqueueRun(run ir.Run) {
	j.enqueue(func(b *Batch) { b.Runs = append(b.Runs, run) }, 1)
}

// EnqueueEdges schedules committed edges for persistence.
func (j *Journal) EnqueueEdges(edges []ir.Edge) {
	j.enqueue(func(b *Batch) { b.Edges = append(b.Edges, edges...) }, len(edges))
}

func (j *Journal) enqueue(add func(*Batch), n int) {
	if n == 0 {
		return
	}

	j.mu.Lock()
	if j.closed || j.err != nil {
		j.mu.Unlock()
		j.logger.Warn("record dropped", zap.Int("count", n), zap.Bool("closed", j.closed))
		return
	}
	add(&j.pending)
	j.enqueued += uint64(n)
	depth := j.pending.Size()
	j.mu.Unlock()

	if j.onDepth != nil {
		j.onDepth(depth)
	}
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until everything enqueued before the call has been written
// or has failed. Returns the sticky write error, if any.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.Lock()
	target := j.enqueued
	for j.settled < target && j.err == nil {
		ch := j.progress
		j.mu.Unlock()
		select {
		case <-ch:
		case <-j.done:
			j.mu.Lock()
			if j.settled < target && j.err == nil {
				j.mu.Unlock()
				return ErrJournalClosed
			}
			j.mu.Unlock()
			return j.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
		j.mu.Lock()
	}
	err := j.err
	j.mu.Unlock()
	return err
}

// Err returns the sticky write error, or nil.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Pending returns the number of records not yet written.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return int(j.enqueued - j.settled)
}

// Close stops accepting records, drains what is pending and stops the
// drain goroutine. Safe to call more than once.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		j.mu.Unlock()
		close(j.stop)
	})
	<-j.done
	return j.Err()
}

func (j *Journal) run() {
	defer close(j.done)
	for {
		select {
		case <-j.wake:
			j.drain()
		case <-j.stop:
			j.drain()
			return
		}
	}
}

// drain writes pending batches until none remain.
func (j *Journal) drain() {
	for {
		j.mu.Lock()
		b := j.pending
		j.pending = Batch{}
		j.mu.Unlock()

		if b.Empty() {
			return
		}

		err := j.write(b)

		j.mu.Lock()
		if err != nil && j.err == nil {
			j.err = err
			j.enqueued -= uint64(j.pending.Size())
			j.pending = Batch{}
		}
		j.settled += uint64(b.Size())
		close(j.progress)
		j.progress = make(chan struct{})
		depth := j.pending.Size()
		j.mu.Unlock()

		if j.onDepth != nil {
			j.onDepth(depth)
		}
		if err != nil {
			j.logger.Error("batch write failed, journal stopped",
				zap.Int("assets", len(b.Assets)),
				zap.Int("runs", len(b.Runs)),
				zap.Int("edges", len(b.Edges)),
				zap.Error(err))
			if j.onFailure != nil {
				j.onFailure(err)
			}
		}
	}
}

func (j *Journal) write(b Batch) error {
	var err error
	wait := j.backoff
	for attempt := 0; attempt <= j.retries; attempt++ {
		if attempt > 0 {
			j.logger.Warn("retrying batch write", zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(wait)
			wait *= 2
		}
		if err = j.w.WriteBatch(context.Background(), b); err == nil {
			j.logger.Debug("batch written", zap.Int("records", b.Size()))
			return nil
		}
	}
	return fmt.Errorf("write batch after %d attempts: %w", j.retries+1, err)
}
