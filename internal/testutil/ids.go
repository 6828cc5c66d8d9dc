package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs generates run ids run_0001, run_0002, ...
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with a fresh SequentialRunIDs produces byte-identical
// ledgers.
//
// Thread-safety: safe for concurrent use.
type SequentialRunIDs struct {
	mu sync.Mutex
	n  int
}

// NewSequentialRunIDs creates a generator whose first id is run_0001.
func NewSequentialRunIDs() *SequentialRunIDs {
	return &SequentialRunIDs{}
}

// NewRunID returns the next id.
//
// Implements runs.IDGenerator.
func (g *SequentialRunIDs) NewRunID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run_%04d", g.n)
}
