// Package preflight provides readiness checks for the filesystem, the shared
// store and the external services a worker depends on.
//
// These checks run in two contexts:
//   - The worker runs RunAll at startup and logs every failed check.
//   - The CLI "verdandi check" command renders the same results as a table
//     and exits non-zero when any check fails.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
