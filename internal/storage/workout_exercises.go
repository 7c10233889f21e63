package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// WorkoutExerciseRow is the durable progress row for one exercise within a
// workout. Exactly one row exists per (workout, exercise) pair.
type WorkoutExerciseRow struct {
	ID            uuid.UUID `json:"id"`
	WorkoutID     uuid.UUID `json:"workout_id"`
	ExerciseID    uuid.UUID `json:"exercise_id"`
	SetsCompleted int       `json:"sets_completed"`
	Notes         string    `json:"notes,omitempty"`
}

// UpsertWorkoutExercise inserts or updates the progress row keyed by
// (workout_id, exercise_id) and returns the row id, so repeated saves for
// the same exercise stay idempotent.
func (db *DB) UpsertWorkoutExercise(ctx context.Context, row WorkoutExerciseRow) (uuid.UUID, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	var id uuid.UUID
	err := db.sql.QueryRowContext(ctx,
		`INSERT INTO workout_exercises (id, workout_id, exercise_id, sets_completed, notes)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (workout_id, exercise_id)
		 DO UPDATE SET sets_completed = excluded.sets_completed, notes = excluded.notes
		 RETURNING id`,
		row.ID, row.WorkoutID, row.ExerciseID, row.SetsCompleted, row.Notes).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting workout exercise: %w", err)
	}
	return id, nil
}

// ListWorkoutExercises retrieves all durable exercise rows for a workout.
func (db *DB) ListWorkoutExercises(ctx context.Context, workoutID uuid.UUID) ([]WorkoutExerciseRow, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, workout_id, exercise_id, sets_completed, notes
		 FROM workout_exercises WHERE workout_id = ?`,
		workoutID)
	if err != nil {
		return nil, fmt.Errorf("querying workout exercises: %w", err)
	}
	defer rows.Close()

	var result []WorkoutExerciseRow
	for rows.Next() {
		var r WorkoutExerciseRow
		if err := rows.Scan(&r.ID, &r.WorkoutID, &r.ExerciseID, &r.SetsCompleted, &r.Notes); err != nil {
			return nil, fmt.Errorf("scanning workout exercise: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
