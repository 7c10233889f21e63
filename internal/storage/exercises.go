package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Exercise is a library entry referenced by routine templates.
type Exercise struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	PrimaryMuscle string    `json:"primary_muscle"`
	Category      string    `json:"category"`
}

// CreateExercise inserts an exercise row.
func (db *DB) CreateExercise(ctx context.Context, e Exercise) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO exercises (id, name, primary_muscle, category) VALUES (?, ?, ?, ?)`,
		e.ID, e.Name, e.PrimaryMuscle, e.Category)
	if err != nil {
		return fmt.Errorf("inserting exercise: %w", err)
	}
	return nil
}

// GetExercise retrieves an exercise by id. Returns sql.ErrNoRows (wrapped)
// if it does not exist.
func (db *DB) GetExercise(ctx context.Context, id uuid.UUID) (Exercise, error) {
	var e Exercise
	err := db.sql.QueryRowContext(ctx,
		`SELECT id, name, primary_muscle, category FROM exercises WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.PrimaryMuscle, &e.Category)
	if err != nil {
		return Exercise{}, fmt.Errorf("querying exercise: %w", err)
	}
	return e, nil
}

// ListExercises retrieves all exercises ordered by name.
func (db *DB) ListExercises(ctx context.Context) ([]Exercise, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, name, primary_muscle, category FROM exercises ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var result []Exercise
	for rows.Next() {
		var e Exercise
		if err := rows.Scan(&e.ID, &e.Name, &e.PrimaryMuscle, &e.Category); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteExercise removes an exercise from the library.
func (db *DB) DeleteExercise(ctx context.Context, id uuid.UUID) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM exercises WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting exercise: %w", err)
	}
	return nil
}
