// Package provenance is the public face of the store.
//
// A Store composes the asset store, the run namespace, the edge ledger and
// the lineage engine, and wires them to durable storage, metrics and logging:
//
//	producers ──PutAssets/RegisterRun/Link──▶ Store ──▶ in-memory authority
//	                                            │            │ commit hooks
//	consumers ◀──Ledger/Ancestors/Explain────────┘            ▼
//	                                                   Journal ──▶ SQLite
//
// The in-memory components are authoritative for reads. Every commit is
// handed to the journal from inside its critical section, so the durable
// copy is always a prefix of the in-memory one in commit order. With sync
// writes enabled, mutating calls also wait for durability, outside any lock.
//
// Failure leaves the store unchanged: validation runs before the commit
// point and a batch is committed whole or not at all.
package provenance
