// Package daemon coordinates the long-running worker process.
//
// It wires configuration, the shared store and the worker pool into a single
// lifecycle with flock-based locking so only one process runs per worker id
// on a host. Other hosts coordinate through the store. The daemon optionally
// serves a read-only HTTP status endpoint for dashboards.
//
// Keep orchestration logic here: pipeline behaviour belongs to the workflow
// and stages packages while the daemon focuses on startup, shutdown and
// status reporting.
package daemon
