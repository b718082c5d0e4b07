package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Experiment describes an experiment in a transport-friendly format.
type Experiment struct {
	ID             int64         `json:"id"`
	Title          string        `json:"title"`
	Summary        string        `json:"summary,omitempty"`
	TopicKey       string        `json:"topicKey"`
	Status         string        `json:"status"`
	CurrentStage   int           `json:"currentStage"`
	StageName      string        `json:"stageName,omitempty"`
	WorkerID       string        `json:"workerId,omitempty"`
	ErrorMessage   string        `json:"errorMessage,omitempty"`
	Review         *Review       `json:"review,omitempty"`
	CreatedAt      string        `json:"createdAt,omitempty"`
	UpdatedAt      string        `json:"updatedAt,omitempty"`
	Stages         []StageResult `json:"stages,omitempty"`
	Events         []Event       `json:"events,omitempty"`
	NeedsReview    bool          `json:"needsReview"`
	ReservationKey string        `json:"reservationKey,omitempty"`
}

// Review is the recorded human review decision.
type Review struct {
	Decision   string `json:"decision"`
	Reviewer   string `json:"reviewer,omitempty"`
	Notes      string `json:"notes,omitempty"`
	ReviewedAt string `json:"reviewedAt,omitempty"`
}

// StageResult is one stage attempt.
type StageResult struct {
	Stage         string          `json:"stage"`
	Order         int             `json:"order"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	WorkerID      string          `json:"workerId,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Event is one entry of an experiment's event log.
type Event struct {
	Type      string `json:"type"`
	Stage     string `json:"stage,omitempty"`
	Message   string `json:"message,omitempty"`
	WorkerID  string `json:"workerId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Job is a backlog entry.
type Job struct {
	ID           int64  `json:"id"`
	Kind         string `json:"kind"`
	ExperimentID int64  `json:"experimentId,omitempty"`
	Status       string `json:"status"`
	ClaimedBy    string `json:"claimedBy,omitempty"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"lastError,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Reservation is a topic claim.
type Reservation struct {
	ID           string `json:"id"`
	TopicKey     string `json:"topicKey"`
	Holder       string `json:"holder"`
	Status       string `json:"status"`
	ExperimentID int64  `json:"experimentId,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// Breaker mirrors the state of one dependency circuit.
type Breaker struct {
	Dependency string `json:"dependency"`
	State      string `json:"state"`
	Failures   int    `json:"failures"`
	OpenedAt   string `json:"openedAt,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name       string `json:"name"`
	Dependency string `json:"dependency,omitempty"`
	Ready      bool   `json:"ready"`
	Detail     string `json:"detail,omitempty"`
}

// WorkerStatus summarizes one worker process.
type WorkerStatus struct {
	Running     bool           `json:"running"`
	WorkerID    string         `json:"workerId"`
	PID         int            `json:"pid,omitempty"`
	LockPath    string         `json:"lockPath,omitempty"`
	Slots       int            `json:"slots"`
	Inflight    []int64        `json:"inflight"`
	Finished    int            `json:"finished"`
	Failed      int            `json:"failed"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *Job           `json:"lastJob,omitempty"`
	Experiments map[string]int `json:"experiments"`
	StageHealth []StageHealth  `json:"stageHealth"`
	Breakers    []Breaker      `json:"breakers"`
}

// ExperimentListResponse wraps a collection of experiments.
type ExperimentListResponse struct {
	Experiments []Experiment `json:"experiments"`
}

// ExperimentResponse wraps a single experiment.
type ExperimentResponse struct {
	Experiment Experiment `json:"experiment"`
}
