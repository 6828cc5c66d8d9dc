package provenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/assets"
	"github.com/roach88/mcg/internal/config"
	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/ledger"
	"github.com/roach88/mcg/internal/lineage"
	"github.com/roach88/mcg/internal/metrics"
	"github.com/roach88/mcg/internal/runs"
	"github.com/roach88/mcg/internal/schema"
	"github.com/roach88/mcg/internal/store"
)

// ErrNotDurable marks a call that committed in memory but whose records
// could not be written to disk. Only returned with sync writes enabled.
var ErrNotDurable = errors.New("committed in memory but not durable")

// ErrClosed is returned by mutating calls after Close.
var ErrClosed = errors.New("provenance store closed")

// Store is the provenance store.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	assets  *assets.Store
	runs    *runs.Registry
	ledger  *ledger.Ledger
	lineage *lineage.Engine

	durable *store.Store
	journal *store.Journal

	metrics    *metrics.Collector
	logger     *zap.Logger
	syncWrites bool

	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	now            func() time.Time
	runIDs         runs.IDGenerator
	validator      assets.Validator
	metrics        *metrics.Collector
	logger         *zap.Logger
	appendTimeout  time.Duration
	hashWorkers    int
	syncWrites     bool
	journalRetries int
	journalBackoff time.Duration
}

// Option configures a Store.
type Option func(*options)

// WithClock sets the wall clock used for created_at, started_at and edge
// timestamps. Defaults to time.Now in UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRunIDs sets the generator for runs registered without an id.
func WithRunIDs(g runs.IDGenerator) Option {
	return func(o *options) { o.runIDs = g }
}

// WithValidator enables payload shape checks on PutAssets.
func WithValidator(v assets.Validator) Option {
	return func(o *options) { o.validator = v }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAppendTimeout bounds the wait for the ledger append slot.
func WithAppendTimeout(d time.Duration) Option {
	return func(o *options) { o.appendTimeout = d }
}

// WithHashWorkers bounds parallel hashing per PutAssets call.
func WithHashWorkers(n int) Option {
	return func(o *options) { o.hashWorkers = n }
}

// WithSyncWrites makes mutating calls wait until their records are durable.
// Has no effect on an in-memory store.
func WithSyncWrites(on bool) Option {
	return func(o *options) { o.syncWrites = on }
}

// WithJournalRetries sets the retry policy for failed disk batches.
func WithJournalRetries(n int, backoff time.Duration) Option {
	return func(o *options) {
		o.journalRetries = n
		o.journalBackoff = backoff
	}
}

func defaultOptions() options {
	return options{
		now:            func() time.Time { return time.Now().UTC() },
		runIDs:         runs.UUIDGenerator{},
		logger:         zap.NewNop(),
		appendTimeout:  ledger.DefaultAppendTimeout,
		hashWorkers:    4,
		journalRetries: 3,
		journalBackoff: 50 * time.Millisecond,
	}
}

// New creates an in-memory store with no durability.
func New(opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return build(o, nil, nil)
}

// Open creates a store from configuration. With a store path, durable state
// is loaded from SQLite, indices are rebuilt and every later commit is
// journaled; with an empty path the store is in memory. opts apply after
// the configuration and override it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Store, error) {
	o := defaultOptions()
	o.appendTimeout = cfg.Ledger.AppendTimeout
	o.hashWorkers = cfg.Store.HashWorkers
	o.syncWrites = cfg.Store.SyncWrites
	o.journalRetries = cfg.Store.JournalRetries
	o.journalBackoff = cfg.Store.JournalBackoff

	if cfg.Schema.Enabled {
		v, err := loadSchema(cfg.Schema.Files)
		if err != nil {
			return nil, err
		}
		o.validator = v
	}

	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Store.Path == "" {
		return build(o, nil, nil), nil
	}
	return openDurable(ctx, cfg.Store.Path, o)
}

// OpenPath opens a durable store at path with default configuration.
func OpenPath(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return openDurable(ctx, path, o)
}

func loadSchema(files []string) (*schema.Validator, error) {
	extra := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", f, err)
		}
		extra = append(extra, string(data))
	}
	v, err := schema.NewWith(extra...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return v, nil
}

func openDurable(ctx context.Context, path string, o options) (*Store, error) {
	durable, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	state, err := durable.Load(ctx)
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("load durable state: %w", err)
	}

	journal := store.NewJournal(durable,
		store.WithRetries(o.journalRetries, o.journalBackoff),
		store.WithDepthObserver(o.metrics.SetJournalPending),
		store.WithFailureObserver(func(error) { o.metrics.RecordJournalFailure() }),
		store.WithJournalLogger(o.logger),
	)

	s := build(o, durable, journal)
	if err := s.restore(state); err != nil {
		journal.Close()
		durable.Close()
		return nil, fmt.Errorf("restore durable state: %w", err)
	}

	s.logger.Info("store opened",
		zap.String("path", path),
		zap.Int("assets", len(state.Assets)),
		zap.Int("runs", len(state.Runs)),
		zap.Int("edges", len(state.Edges)))
	return s, nil
}

// build wires the components. journal may be nil for an in-memory store.
func build(o options, durable *store.Store, journal *store.Journal) *Store {
	s := &Store{
		durable:    durable,
		journal:    journal,
		metrics:    o.metrics,
		logger:     o.logger.With(zap.String("component", "provenance")),
		syncWrites: o.syncWrites && journal != nil,
	}

	assetOpts := []assets.Option{
		assets.WithClock(o.now),
		assets.WithHashWorkers(o.hashWorkers),
		assets.WithLogger(o.logger),
	}
	runOpts := []runs.Option{
		runs.WithClock(o.now),
		runs.WithIDGenerator(o.runIDs),
		runs.WithLogger(o.logger),
	}
	ledgerOpts := []ledger.Option{
		ledger.WithClock(o.now),
		ledger.WithAppendTimeout(o.appendTimeout),
		ledger.WithWaitObserver(o.metrics.ObserveAppendWait),
		ledger.WithLogger(o.logger),
	}
	if o.validator != nil {
		assetOpts = append(assetOpts, assets.WithValidator(o.validator))
	}
	if journal != nil {
		assetOpts = append(assetOpts, assets.WithCommitHook(journal.EnqueueAssets))
		runOpts = append(runOpts, runs.WithCommitHook(journal.EnqueueRun))
		ledgerOpts = append(ledgerOpts, ledger.WithCommitHook(journal.EnqueueEdges))
	}

	s.assets = assets.New(assetOpts...)
	s.runs = runs.New(runOpts...)
	s.ledger = ledger.New(s.assets, s.runs, ledgerOpts...)
	s.lineage = lineage.New(s.ledger, s.assets, s.runs, o.logger)
	return s
}

// restore loads state into the in-memory components without journaling it.
func (s *Store) restore(st ir.State) error {
	if err := s.assets.Restore(st.Assets); err != nil {
		return err
	}
	if err := s.runs.Restore(st.Runs); err != nil {
		return err
	}
	return s.ledger.Restore(st.Edges)
}

// Durable reports whether commits are journaled to disk.
func (s *Store) Durable() bool {
	return s.journal != nil
}

// Metrics returns the attached collector, or nil.
func (s *Store) Metrics() *metrics.Collector {
	return s.metrics
}

// Flush waits until every commit made before the call is on disk.
// A no-op for an in-memory store.
func (s *Store) Flush(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close drains the journal and closes the database. Later mutating calls
// fail with ErrClosed; reads keep working on the in-memory state.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()

		var errs []error
		if s.journal != nil {
			if err := s.journal.Close(); err != nil {
				errs = append(errs, fmt.Errorf("drain journal: %w", err))
			}
		}
		if s.durable != nil {
			if err := s.durable.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("store closed", zap.Error(s.closeErr))
	})
	return s.closeErr
}

// enter guards a mutating call against a concurrent Close. The returned
// func must be called when the call has committed.
func (s *Store) enter() (func(), error) {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return nil, ErrClosed
	}
	return s.closeMu.RUnlock, nil
}

// enterExclusive is enter for operations that replace state wholesale. It
// waits for in-flight mutations and holds off new ones until released.
func (s *Store) enterExclusive() (func(), error) {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil, ErrClosed
	}
	return s.closeMu.Unlock, nil
}

// settle applies the sync-writes policy after a successful commit.
func (s *Store) settle(ctx context.Context) error {
	if !s.syncWrites {
		return nil
	}
	if err := s.journal.Flush(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotDurable, err)
	}
	return nil
}
