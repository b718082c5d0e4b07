// Package store persists experiments, stage checkpoints, topic reservations,
// breaker state, the job backlog, and the experiment event log.
//
// SQLite (modernc.org/sqlite) is the default backend; PostgreSQL through pgx is
// used when several hosts share one backlog. Both run the same SQL: queries are
// written with ? placeholders and rebound per dialect.
//
// Mutations that enforce an invariant are single statements. Successful stage
// results are guarded by a partial unique index, status changes are
// compare-and-set on the expected current status, and reservations are taken
// with one conditional upsert, so concurrent workers never observe a lost
// update.
package store
