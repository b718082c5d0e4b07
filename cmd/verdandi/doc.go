// Package main provides the verdandi command-line interface.
//
// The CLI runs the worker process, drives experiments in the foreground,
// records human review decisions and inspects the shared store. Read
// commands open the store directly so they work whether or not a worker is
// running; a worker's live pool state is exposed through its optional HTTP
// status endpoint instead.
package main
