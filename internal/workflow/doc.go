// Package workflow drives experiments through the stage registry.
//
// The Orchestrator runs one experiment from its resume point (the stage after
// the highest persisted success) until it halts at a gate, pauses for human
// review, fails, or completes. Every stage result is durably written before
// the experiment advances, so re-running an experiment never repeats a
// completed stage.
//
// The Discoverer runs the first stage in batches, screening each proposal
// against existing topics and reserving it before an experiment is created.
//
// The Pool is the worker process: a feeder claims jobs from the shared store
// backlog and dispatches them onto a fixed number of slots, heart-beating
// running jobs and reclaiming jobs abandoned by crashed workers. The backlog's
// dedupe key and an in-process inflight set together guarantee an experiment
// never runs in two slots at once.
package workflow
