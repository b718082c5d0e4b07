// Package coordination keeps concurrent workers from pursuing the same topic.
//
// Before a discovered idea becomes an experiment it is screened against every
// live or completed topic reservation in two passes: a fast keyword
// fingerprint comparison (Jaccard) and a pluggable semantic similarity. A
// surviving idea is then reserved through the store's atomic upsert, which is
// the only arbiter between workers; nothing here relies on in-memory locks.
// Reservations are kept alive by heartbeats while their experiment runs and
// lapse after their TTL when a worker dies.
package coordination
