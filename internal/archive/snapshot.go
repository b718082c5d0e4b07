package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"verdandi/internal/store"
)

// Snapshot is the archived view of one experiment.
type Snapshot struct {
	ID           int64         `yaml:"id"`
	Title        string        `yaml:"title"`
	TopicKey     string        `yaml:"topic_key"`
	Status       store.Status  `yaml:"status"`
	CurrentStage int           `yaml:"current_stage"`
	Review       *ReviewRecord `yaml:"review,omitempty"`
	Stages       []StageRecord `yaml:"stages"`
	Events       []EventRecord `yaml:"events,omitempty"`
	CreatedAt    time.Time     `yaml:"created_at"`
	ArchivedAt   time.Time     `yaml:"archived_at"`
}

// ReviewRecord captures the human review decision.
type ReviewRecord struct {
	Decision   store.ReviewDecision `yaml:"decision"`
	Reviewer   string               `yaml:"reviewer,omitempty"`
	Notes      string               `yaml:"notes,omitempty"`
	ReviewedAt time.Time            `yaml:"reviewed_at"`
}

// StageRecord is one successful stage checkpoint.
type StageRecord struct {
	Name        string    `yaml:"name"`
	Order       int       `yaml:"order"`
	Attempts    int       `yaml:"attempts"`
	WorkerID    string    `yaml:"worker_id,omitempty"`
	CompletedAt time.Time `yaml:"completed_at"`
	Result      any       `yaml:"result,omitempty"`
}

// EventRecord is one event log entry.
type EventRecord struct {
	Type    string    `yaml:"type"`
	Stage   string    `yaml:"stage,omitempty"`
	Message string    `yaml:"message,omitempty"`
	At      time.Time `yaml:"at"`
}

// Build loads everything needed to snapshot an experiment.
func Build(ctx context.Context, st *store.Store, experimentID int64) (*Snapshot, error) {
	exp, err := st.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	results, err := st.SuccessfulResults(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	events, err := st.ListEvents(ctx, experimentID, 0)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:           exp.ID,
		Title:        exp.Title,
		TopicKey:     exp.TopicKey,
		Status:       exp.Status,
		CurrentStage: exp.CurrentStage,
		CreatedAt:    exp.CreatedAt,
		ArchivedAt:   st.Now(),
	}
	if exp.ReviewDecision != store.ReviewNone {
		snap.Review = &ReviewRecord{
			Decision:   exp.ReviewDecision,
			Reviewer:   exp.ReviewedBy,
			Notes:      exp.ReviewNotes,
			ReviewedAt: exp.ReviewedAt,
		}
	}
	for _, r := range results {
		rec := StageRecord{
			Name:        r.StageName,
			Order:       r.StageOrder,
			Attempts:    r.Attempts,
			WorkerID:    r.WorkerID,
			CompletedAt: r.CreatedAt,
		}
		if len(r.Payload) > 0 {
			var decoded any
			if err := json.Unmarshal(r.Payload, &decoded); err != nil {
				return nil, fmt.Errorf("decode %s result: %w", r.StageName, err)
			}
			rec.Result = decoded
		}
		snap.Stages = append(snap.Stages, rec)
	}
	for _, e := range events {
		snap.Events = append(snap.Events, EventRecord{Type: e.Type, Stage: e.StageName, Message: e.Message, At: e.CreatedAt})
	}
	return snap, nil
}

// Marshal renders the snapshot as YAML.
func (s *Snapshot) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Key is the object name a snapshot is stored under, relative to the prefix.
func (s *Snapshot) Key() string {
	if s.TopicKey == "" {
		return fmt.Sprintf("%06d.yaml", s.ID)
	}
	return fmt.Sprintf("%06d-%s.yaml", s.ID, s.TopicKey)
}
