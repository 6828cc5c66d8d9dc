// Package lineage answers read-side queries over the asset store and the
// edge ledger: filtered edge selection, ancestor and descendant closures,
// and the canonical explain chain.
//
// Every query runs against one ledger.View, so a query never mixes edges
// from before and after a concurrent append.
//
// Traversal follows output relations (PRODUCES, DERIVES, LOGS) everywhere
// and input relations (USES, CONFIGURES) only where they enter a run, so
// "what was this computed from" crosses runs to reach their inputs. Runs are
// traversed but never returned; results contain assets only. A visited set
// guarantees termination on cyclic graphs.
package lineage
