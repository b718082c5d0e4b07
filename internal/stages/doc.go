// Package stages provides the deterministic reference implementations of the
// ten pipeline stages.
//
// The handlers derive every output from the experiment and earlier stage
// results without calling external services, so the pipeline can be run end
// to end offline. Each descriptor still names the dependency a production
// implementation would call, which keeps breaker bookkeeping realistic.
// Real integrations replace individual handlers through Options.
package stages
