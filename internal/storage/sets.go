package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// SetRow is the durable form of one logged set.
type SetRow struct {
	ID                uuid.UUID           `json:"id"`
	WorkoutExerciseID uuid.UUID           `json:"workout_exercise_id"`
	SetNumber         int                 `json:"set_number"`
	Reps              int                 `json:"reps"`
	Weight            float64             `json:"weight"`
	RestTimeSeconds   int                 `json:"rest_time_seconds"`
	Completed         bool                `json:"completed"`
	TrainingType      models.TrainingType `json:"training_type,omitempty"`
	Notes             string              `json:"notes,omitempty"`
}

// UpsertSet writes a set row keyed by (workout exercise, set number) and
// returns the canonical row id — the pre-existing one on conflict. A caller
// that lost track of the id (a snapshot taken before the previous save's id
// writeback) therefore converges on the same row instead of duplicating it.
func (db *DB) UpsertSet(ctx context.Context, row SetRow) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.sql.QueryRowContext(ctx,
		`INSERT INTO sets (id, workout_exercise_id, set_number, reps, weight, rest_time, completed, training_type, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (workout_exercise_id, set_number) DO UPDATE SET
		   reps = excluded.reps,
		   weight = excluded.weight,
		   rest_time = excluded.rest_time,
		   completed = excluded.completed,
		   training_type = excluded.training_type,
		   notes = excluded.notes
		 RETURNING id`,
		uuid.New(), row.WorkoutExerciseID, row.SetNumber, row.Reps, row.Weight,
		row.RestTimeSeconds, row.Completed, nullableType(row.TrainingType), row.Notes).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting set: %w", err)
	}
	return id, nil
}

// UpdateSet updates an existing set row by id.
func (db *DB) UpdateSet(ctx context.Context, row SetRow) error {
	_, err := db.sql.ExecContext(ctx,
		`UPDATE sets SET reps = ?, weight = ?, rest_time = ?, completed = ?, training_type = ?, notes = ?
		 WHERE id = ?`,
		row.Reps, row.Weight, row.RestTimeSeconds, row.Completed,
		nullableType(row.TrainingType), row.Notes, row.ID)
	if err != nil {
		return fmt.Errorf("updating set: %w", err)
	}
	return nil
}

// DeleteSet removes a set row by id.
func (db *DB) DeleteSet(ctx context.Context, id uuid.UUID) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting set: %w", err)
	}
	return nil
}

// ListSets retrieves the sets of a workout exercise in set-number order.
func (db *DB) ListSets(ctx context.Context, workoutExerciseID uuid.UUID) ([]SetRow, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, workout_exercise_id, set_number, reps, weight, rest_time, completed, training_type, notes
		 FROM sets
		 WHERE workout_exercise_id = ?
		 ORDER BY set_number ASC`,
		workoutExerciseID)
	if err != nil {
		return nil, fmt.Errorf("querying sets: %w", err)
	}
	defer rows.Close()

	var result []SetRow
	for rows.Next() {
		r, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanSet(rows *sql.Rows) (SetRow, error) {
	var r SetRow
	var trainingType sql.NullString
	if err := rows.Scan(&r.ID, &r.WorkoutExerciseID, &r.SetNumber, &r.Reps, &r.Weight,
		&r.RestTimeSeconds, &r.Completed, &trainingType, &r.Notes); err != nil {
		return SetRow{}, fmt.Errorf("scanning set: %w", err)
	}
	if trainingType.Valid {
		r.TrainingType = models.TrainingType(trainingType.String)
	}
	return r, nil
}

func nullableType(t models.TrainingType) any {
	if t == "" {
		return nil
	}
	return string(t)
}
