// Package archive writes point-in-time YAML snapshots of finished
// experiments to a filesystem directory or an S3-compatible bucket.
//
// A snapshot holds the experiment row, every successful stage result with
// its decoded payload, and the event log. Snapshots are overwritten when an
// experiment is archived again, so the key is stable per experiment.
package archive
