package assets

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/mcg/internal/ir"
)

// Validator checks payload shape before an asset is admitted.
// Implemented by *schema.Validator.
type Validator interface {
	Validate(t ir.AssetType, payload ir.Object) error
}

// CommitHook receives newly inserted assets while the store lock is held.
// It must not block on I/O; enqueue and return.
type CommitHook func(inserted []ir.Asset)

// Result reports the outcome of one item of a put.
type Result struct {
	ID       string
	Inserted bool
}

// record is the stored form: the asset plus its canonical payload bytes,
// which are what equality and conflict detection compare.
type record struct {
	asset     ir.Asset
	canonical []byte
}

// Store is the in-memory authority for assets.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]record

	now       func() time.Time
	validator Validator
	onCommit  CommitHook
	workers   int
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the wall clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithValidator enables payload shape checks.
func WithValidator(v Validator) Option {
	return func(s *Store) { s.validator = v }
}

// WithCommitHook registers the hook that receives inserted assets.
func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.onCommit = h }
}

// WithHashWorkers bounds the goroutines hashing a batch. Zero means one per
// item.
func WithHashWorkers(n int) Option {
	return func(s *Store) { s.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]record),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "assets"))
	return s
}

// prepared is an input after hashing, ready for the commit point.
type prepared struct {
	typ       ir.AssetType
	payload   ir.Object
	canonical []byte
	id        string
}

// Put stores one asset and returns its id. inserted is false when an equal
// asset was already present.
func (s *Store) Put(ctx context.Context, t ir.AssetType, payload ir.Object) (id string, inserted bool, err error) {
	results, err := s.PutMany(ctx, []ir.AssetInput{{Type: t, Payload: payload}})
	if err != nil {
		return "", false, err
	}
	return results[0].ID, results[0].Inserted, nil
}

// PutMany stores a batch, returning one Result per input in request order.
//
// Every item is hashed and validated before the commit point; any failure
// (encoding, schema, conflict) aborts the whole batch with nothing stored.
// Items already present, or repeated within the batch, are deduplicated.
func (s *Store) PutMany(ctx context.Context, inputs []ir.AssetInput) ([]Result, error) {
	items, err := s.prepare(ctx, inputs)
	if err != nil {
		return nil, err
	}

	// Abandoned before commit: no effect.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]Result, len(items))
	batch := make(map[string]int, len(items))
	var fresh []ir.Asset

	for i, it := range items {
		results[i].ID = it.id

		if existing, ok := s.records[it.id]; ok {
			if !bytes.Equal(existing.canonical, it.canonical) {
				return nil, ir.NewIntegrityConflict(it.id, "stored payload differs from submitted payload")
			}
			continue
		}
		if j, ok := batch[it.id]; ok {
			if !bytes.Equal(items[j].canonical, it.canonical) {
				return nil, ir.NewIntegrityConflict(it.id, "batch holds two payloads for one id")
			}
			continue
		}
		batch[it.id] = i
		results[i].Inserted = true
	}

	now := s.now()
	for i, it := range items {
		if !results[i].Inserted {
			continue
		}
		a := ir.Asset{ID: it.id, Type: it.typ, Payload: it.payload, CreatedAt: now}
		s.records[it.id] = record{asset: a, canonical: it.canonical}
		fresh = append(fresh, cloneAsset(a))
	}

	if len(fresh) > 0 {
		s.logger.Debug("assets inserted", zap.Int("count", len(fresh)), zap.Int("batch", len(items)))
		if s.onCommit != nil {
			s.onCommit(fresh)
		}
	}

	return results, nil
}

// prepare hashes and validates inputs in parallel.
func (s *Store) prepare(ctx context.Context, inputs []ir.AssetInput) ([]prepared, error) {
	items := make([]prepared, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}

	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !in.Type.Valid() {
				return ir.NewEncodingError(fmt.Sprintf("item %d: unknown asset type %q", i, string(in.Type)), nil)
			}
			if s.validator != nil {
				if err := s.validator.Validate(in.Type, in.Payload); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}

			payload := in.Payload.Clone()
			if payload == nil {
				payload = ir.Object{}
			}
			canonical, err := ir.CanonicalPayload(payload)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			id, err := ir.IdentifyCanonical(in.Type, canonical)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}

			items[i] = prepared{typ: in.Type, payload: payload, canonical: canonical, id: id}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns the asset with id, or NotFound.
func (s *Store) Get(ctx context.Context, id string) (ir.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return ir.Asset{}, ir.NewNotFound(id)
	}
	return cloneAsset(rec.asset), nil
}

// GetMany returns assets in request order. Any missing id fails the whole
// call with NotFound naming the first missing id.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]ir.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ir.Asset, 0, len(ids))
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			return nil, ir.NewNotFound(id)
		}
		out = append(out, cloneAsset(rec.asset))
	}
	return out, nil
}

// Exists reports whether id is stored. Never fails.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Len returns the number of stored assets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns every asset ordered by id.
func (s *Store) All() []ir.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ir.Asset, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneAsset(rec.asset))
	}
	slices.SortFunc(out, func(a, b ir.Asset) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Restore loads persisted assets without invoking the commit hook.
// Each id is recomputed from its payload; a mismatch is an IntegrityConflict
// and nothing is loaded.
func (s *Store) Restore(loaded []ir.Asset) error {
	staged := make(map[string]record, len(loaded))
	for _, a := range loaded {
		canonical, err := ir.CanonicalPayload(a.Payload)
		if err != nil {
			return fmt.Errorf("restore %s: %w", a.ID, err)
		}
		id, err := ir.IdentifyCanonical(a.Type, canonical)
		if err != nil {
			return fmt.Errorf("restore %s: %w", a.ID, err)
		}
		if id != a.ID {
			return ir.NewIntegrityConflict(a.ID, fmt.Sprintf("payload hashes to %s", id))
		}
		staged[id] = record{asset: cloneAsset(a), canonical: canonical}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range staged {
		if existing, ok := s.records[id]; ok && !bytes.Equal(existing.canonical, rec.canonical) {
			return ir.NewIntegrityConflict(id, "restored payload differs from stored payload")
		}
	}
	for id, rec := range staged {
		if _, ok := s.records[id]; !ok {
			s.records[id] = rec
		}
	}
	s.logger.Debug("assets restored", zap.Int("count", len(staged)))
	return nil
}

func cloneAsset(a ir.Asset) ir.Asset {
	a.Payload = a.Payload.Clone()
	return a
}
