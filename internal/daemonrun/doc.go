// Package daemonrun owns the worker process lifecycle: logging setup, the pid
// file, store and service assembly, startup preflight, and signal handling.
package daemonrun
