// Package stage defines the contract between the orchestrator and the stages
// it runs.
//
// A Registry is the static, ordered catalogue of stage Descriptors built once
// at start-up. Each descriptor names the external dependency its handler
// calls (one circuit breaker per dependency) and whether the stage is a gate
// whose decision can halt or pause a run.
//
// Stage outputs are a closed set of payload types, one per stage, persisted
// as JSON and decoded back into their concrete type when later stages need
// them.
package stage
