package store

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict indicates a compare-and-set status update lost a race.
	ErrStatusConflict = errors.New("experiment status changed concurrently")
	// ErrInvalidTransition indicates a status change outside the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStageAlreadyCompleted indicates a successful result already exists.
	ErrStageAlreadyCompleted = errors.New("stage already completed")
	// ErrReservationLost indicates the caller no longer holds the reservation.
	ErrReservationLost = errors.New("reservation lost")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
