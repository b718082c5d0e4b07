package api

import (
	"context"
	"errors"

	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// ExperimentService exposes read operations over experiments.
type ExperimentService struct {
	store    *store.Store
	registry *stage.Registry
}

// NewExperimentService constructs a service. The registry is optional and
// only used to name the current stage.
func NewExperimentService(st *store.Store, reg *stage.Registry) *ExperimentService {
	return &ExperimentService{store: st, registry: reg}
}

// List returns experiments filtered by status (all when empty).
func (s *ExperimentService) List(ctx context.Context, statuses ...store.Status) ([]Experiment, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rows, err := s.store.ListExperiments(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	out := make([]Experiment, 0, len(rows))
	for _, exp := range rows {
		out = append(out, FromExperiment(exp, s.registry))
	}
	return out, nil
}

// Describe returns one experiment with every stage attempt and, when
// withEvents is set, its event log. A missing experiment returns nil.
func (s *ExperimentService) Describe(ctx context.Context, id int64, withEvents bool) (*Experiment, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	exp, err := s.store.GetExperiment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := FromExperiment(exp, s.registry)

	attempts, err := s.store.StageAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, res := range attempts {
		out.Stages = append(out.Stages, FromStageResult(res))
	}
	if res, err := s.store.ActiveReservationForExperiment(ctx, id); err == nil && res != nil {
		out.ReservationKey = res.TopicKey
	}
	if withEvents {
		events, err := s.store.ListEvents(ctx, id, 0)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			out.Events = append(out.Events, FromEvent(ev))
		}
	}
	return &out, nil
}
