package store

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle status of an experiment.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusAwaitingReview Status = "awaiting_review"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusNoGo           Status = "no_go"
	StatusArchived       Status = "archived"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusAwaitingReview,
	StatusApproved,
	StatusRejected,
	StatusCompleted,
	StatusFailed,
	StatusNoGo,
	StatusArchived,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a known status.
func ParseStatus(value string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

var transitions = map[Status][]Status{
	StatusPending:        {StatusRunning},
	StatusRunning:        {StatusRunning, StatusNoGo, StatusFailed, StatusAwaitingReview, StatusCompleted},
	StatusAwaitingReview: {StatusApproved, StatusRejected},
	StatusApproved:       {StatusRunning},
	StatusFailed:         {StatusRunning},
}

// CanTransition reports whether the lifecycle graph allows from -> to.
// Archival is allowed from every status except archived itself.
func CanTransition(from, to Status) bool {
	if to == StatusArchived {
		return from != StatusArchived
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further stage may run for the status.
// Failed experiments are not terminal: a later run resumes them.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusNoGo, StatusArchived:
		return true
	default:
		return false
	}
}

// Runnable reports whether the orchestrator may start or resume a run.
func (s Status) Runnable() bool {
	switch s {
	case StatusPending, StatusApproved, StatusFailed, StatusRunning:
		return true
	default:
		return false
	}
}

// ReviewDecision is the operator's verdict at the review gate.
type ReviewDecision string

const (
	ReviewNone     ReviewDecision = ""
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

// Experiment is one candidate idea's lifecycle record.
type Experiment struct {
	ID             int64
	Title          string
	Summary        string
	TopicKey       string
	Fingerprint    string
	Status         Status
	CurrentStage   int
	WorkerID       string
	ErrorMessage   string
	ReviewDecision ReviewDecision
	ReviewedBy     string
	ReviewNotes    string
	ReviewedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewExperiment describes an experiment to create in the pending state.
type NewExperiment struct {
	Title       string
	Summary     string
	TopicKey    string
	Fingerprint string
}

// ResultStatus marks a stage attempt as successful or failed.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// StageResult is the checkpoint written after a stage invocation.
type StageResult struct {
	ID            int64
	ExperimentID  int64
	StageName     string
	StageOrder    int
	Status        ResultStatus
	Attempts      int
	Payload       json.RawMessage
	ErrorMessage  string
	WorkerID      string
	CorrelationID string
	CreatedAt     time.Time
}

// ReservationStatus describes the state of a topic reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationCompleted ReservationStatus = "completed"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a time-bounded claim on a topic key.
type Reservation struct {
	ID           string
	TopicKey     string
	Holder       string
	Description  string
	Fingerprint  string
	ExperimentID int64
	Status       ReservationStatus
	AcquiredAt   time.Time
	ExpiresAt    time.Time
	HeartbeatAt  time.Time
	ReleasedAt   time.Time
}

// Expired reports whether the reservation lapsed at now.
func (r Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationActive && r.ExpiresAt.Before(now)
}

// NewReservation describes a reservation attempt.
type NewReservation struct {
	TopicKey    string
	Holder      string
	Description string
	Fingerprint string
	TTL         time.Duration
}

// CircuitState is the persisted snapshot of one dependency breaker.
type CircuitState struct {
	Dependency string
	State      string
	Failures   int
	OpenedAt   time.Time
	UpdatedAt  time.Time
}

// Event is one entry in an experiment's event log.
type Event struct {
	ID           int64
	ExperimentID int64
	Type         string
	StageName    string
	Message      string
	WorkerID     string
	CreatedAt    time.Time
}

// JobKind distinguishes backlog jobs.
type JobKind string

const (
	JobDiscover JobKind = "discover"
	JobRun      JobKind = "run"
)

// JobStatus tracks a job through the backlog.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a unit of work in the shared backlog.
type Job struct {
	ID           int64
	Kind         JobKind
	ExperimentID int64
	DedupeKey    string
	Params       json.RawMessage
	Status       JobStatus
	ClaimedBy    string
	Attempts     int
	AvailableAt  time.Time
	HeartbeatAt  time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewJob describes a job to enqueue.
type NewJob struct {
	Kind         JobKind
	ExperimentID int64
	DedupeKey    string
	Params       json.RawMessage
	AvailableAt  time.Time
}

// RunJobKey is the dedupe key that keeps one in-flight run per experiment.
func RunJobKey(experimentID int64) string {
	return "run:" + formatInt(experimentID)
}
