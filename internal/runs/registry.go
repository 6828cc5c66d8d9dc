// Package runs holds the run namespace: identity plus status metadata for
// each execution of a computational method.
//
// Runs are not content-addressed. They group the edges a run creates and can
// appear as edge endpoints. Status is owned by the runner and only moves
// forward.
package runs

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/ir"
)

// IDPrefix leads every generated run id.
const IDPrefix = "run_"

// IDGenerator mints run ids.
type IDGenerator interface {
	NewRunID() string
}

// UUIDGenerator generates run_<32 hex> ids from random UUIDs.
type UUIDGenerator struct{}

// NewRunID implements IDGenerator.
func (UUIDGenerator) NewRunID() string {
	id := uuid.New()
	return IDPrefix + strings.ReplaceAll(id.String(), "-", "")
}

// CommitHook receives each registered or updated run while the registry
// lock is held. It must not block on I/O.
type CommitHook func(run ir.Run)

// Registry is the in-memory run namespace.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]ir.Run

	ids      IDGenerator
	now      func() time.Time
	onCommit CommitHook
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator overrides run id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Registry) { r.ids = g }
}

// WithClock sets the wall clock used for StartedAt/EndedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithCommitHook registers the commit hook.
func WithCommitHook(h CommitHook) Option {
	return func(r *Registry) { r.onCommit = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		runs:   make(map[string]ir.Run),
		ids:    UUIDGenerator{},
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "runs"))
	return r
}

// Register adds a run. An empty ID is generated, an empty Status defaults to
// queued, and a zero StartedAt is stamped now.
//
// Registering an existing id with the same kind is idempotent and returns
// the stored run. A different kind is an IntegrityConflict. Ids that look
// like asset ids are rejected so edge endpoints stay unambiguous.
func (r *Registry) Register(ctx context.Context, run ir.Run) (ir.Run, error) {
	if err := ctx.Err(); err != nil {
		return ir.Run{}, err
	}
	if run.Status == "" {
		run.Status = ir.RunQueued
	}
	if _, err := ir.ParseRunStatus(string(run.Status)); err != nil {
		return ir.Run{}, err
	}
	if run.ID != "" {
		if _, isAsset := ir.TypeOfID(run.ID); isAsset {
			return ir.Run{}, ir.NewEncodingError("run id collides with the asset id format", nil)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == "" {
		run.ID = r.ids.NewRunID()
	}
	if existing, ok := r.runs[run.ID]; ok {
		if existing.Kind != run.Kind {
			return ir.Run{}, ir.NewIntegrityConflict(run.ID, "run already registered with kind "+existing.Kind)
		}
		return existing, nil
	}

	now := r.now()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.Status.Terminal() && run.EndedAt == nil {
		run.EndedAt = &now
	}

	r.runs[run.ID] = run
	r.logger.Debug("run registered", zap.String("run_id", run.ID), zap.String("kind", run.Kind))
	if r.onCommit != nil {
		r.onCommit(run)
	}
	return run, nil
}

// allowed lists the forward transitions.
var allowed = map[ir.RunStatus][]ir.RunStatus{
	ir.RunQueued:  {ir.RunRunning, ir.RunDone, ir.RunError},
	ir.RunRunning: {ir.RunDone, ir.RunError},
}

// SetStatus moves a run forward. Setting the current status again is a
// no-op; anything else outside queued -> running -> done|error is an
// InvalidTransition.
func (r *Registry) SetStatus(ctx context.Context, id string, status ir.RunStatus) (ir.Run, error) {
	if err := ctx.Err(); err != nil {
		return ir.Run{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return ir.Run{}, ir.NewNotFound(id)
	}
	if run.Status == status {
		return run, nil
	}
	if !slices.Contains(allowed[run.Status], status) {
		return ir.Run{}, ir.NewInvalidTransition(id, run.Status, status)
	}

	run.Status = status
	if status.Terminal() {
		now := r.now()
		run.EndedAt = &now
	}
	r.runs[id] = run

	r.logger.Debug("run status changed", zap.String("run_id", id), zap.String("status", string(status)))
	if r.onCommit != nil {
		r.onCommit(run)
	}
	return run, nil
}

// Get returns the run with id, or NotFound.
func (r *Registry) Get(id string) (ir.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return ir.Run{}, ir.NewNotFound(id)
	}
	return run, nil
}

// Exists reports whether id names a registered run.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.runs[id]
	return ok
}

// Len returns the number of registered runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// List returns every run ordered by StartedAt, then id.
func (r *Registry) List() []ir.Run {
	r.mu.RLock()
	out := make([]ir.Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ir.Run) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Restore loads persisted runs without invoking the commit hook. Later
// records for one id replace earlier ones.
func (r *Registry) Restore(loaded []ir.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range loaded {
		if run.ID == "" {
			return ir.NewEncodingError("restored run has no id", nil)
		}
		r.runs[run.ID] = run
	}
	r.logger.Debug("runs restored", zap.Int("count", len(loaded)))
	return nil
}
