package workflow

// Event types written to the experiment event log.
const (
	EventRunStarted       = "run_started"
	EventStageStarted     = "stage_started"
	EventStageCompleted   = "stage_completed"
	EventStageFailed      = "stage_failed"
	EventGateHalted       = "gate_halted"
	EventReviewRequested  = "review_requested"
	EventReviewRecorded   = "review_recorded"
	EventIterateSuggested = "iterate_suggested"
	EventRunStopped       = "run_stopped"
	EventCompleted        = "completed"
	EventDiscovered       = "discovered"
	EventArchived         = "archived"
)
