// Package notifications pushes experiment milestones to ntfy.
//
// Workflow code publishes typed events with a loose payload map; the ntfy
// implementation formats titles, tags and priorities. When no topic is
// configured, or an event class is switched off, Publish is a no-op.
package notifications
