package models

import (
	"fmt"

	"github.com/google/uuid"
)

// AlreadyActiveError rejects starting or resuming a workout while another
// one is in progress. It carries the existing workout's id so the caller
// can redirect to it instead of silently overwriting it.
type AlreadyActiveError struct {
	WorkoutID uuid.UUID
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("a workout is already in progress (workout %s)", e.WorkoutID)
}

// NoExercisesError rejects starting a workout from a routine that has no
// exercise templates.
type NoExercisesError struct {
	RoutineID uuid.UUID
}

func (e *NoExercisesError) Error() string {
	return fmt.Sprintf("routine %s has no exercises", e.RoutineID)
}

// EmptyRoutineError rejects resuming a workout whose routine has since been
// emptied of exercise templates.
type EmptyRoutineError struct {
	RoutineID uuid.UUID
}

func (e *EmptyRoutineError) Error() string {
	return fmt.Sprintf("routine %s no longer has any exercises", e.RoutineID)
}

// WorkoutNotFoundError means the resume target vanished from the store.
type WorkoutNotFoundError struct {
	WorkoutID uuid.UUID
}

func (e *WorkoutNotFoundError) Error() string {
	return fmt.Sprintf("workout %s not found", e.WorkoutID)
}

// PersistenceExhaustedError is the soft failure returned when a save ran out
// of retry attempts. In-memory state remains the source of truth and a later
// save may still succeed; nothing is lost unless the process dies first.
type PersistenceExhaustedError struct {
	Attempts int
	Last     error
}

func (e *PersistenceExhaustedError) Error() string {
	return fmt.Sprintf("save failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *PersistenceExhaustedError) Unwrap() error { return e.Last }
