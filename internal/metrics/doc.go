// Package metrics provides Prometheus instrumentation for the provenance
// store.
//
// A Collector registers its metrics on a caller-supplied registry, so tests
// and embedded stores never collide on the global default registry. Every
// Record method is safe on a nil *Collector, which lets components carry an
// optional collector without nil checks at each call site.
package metrics
