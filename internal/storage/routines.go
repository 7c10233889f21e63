package storage

import (
	"context"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// Routine is a named, reusable template of exercises.
type Routine struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// CreateRoutine inserts a routine row.
func (db *DB) CreateRoutine(ctx context.Context, r Routine) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO routines (id, name) VALUES (?, ?)`, r.ID, r.Name)
	if err != nil {
		return fmt.Errorf("inserting routine: %w", err)
	}
	return nil
}

// GetRoutine retrieves a routine by id. Returns sql.ErrNoRows (wrapped) if
// it does not exist.
func (db *DB) GetRoutine(ctx context.Context, id uuid.UUID) (Routine, error) {
	var r Routine
	err := db.sql.QueryRowContext(ctx,
		`SELECT id, name FROM routines WHERE id = ?`, id).Scan(&r.ID, &r.Name)
	if err != nil {
		return Routine{}, fmt.Errorf("querying routine: %w", err)
	}
	return r, nil
}

// ListRoutines retrieves all routines ordered by name.
func (db *DB) ListRoutines(ctx context.Context) ([]Routine, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT id, name FROM routines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var result []Routine
	for rows.Next() {
		var r Routine
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteRoutine removes a routine and, via cascade, its exercise templates.
func (db *DB) DeleteRoutine(ctx context.Context, id uuid.UUID) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting routine: %w", err)
	}
	return nil
}

// AddRoutineExercise appends an exercise template to a routine.
func (db *DB) AddRoutineExercise(ctx context.Context, routineID, exerciseID uuid.UUID, orderNum, targetSets int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO routine_exercises (id, routine_id, exercise_id, order_num, sets)
		 VALUES (?, ?, ?, ?, ?)`,
		id, routineID, exerciseID, orderNum, targetSets)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting routine exercise: %w", err)
	}
	return id, nil
}

// RemoveRoutineExercise deletes a single exercise template from a routine.
func (db *DB) RemoveRoutineExercise(ctx context.Context, id uuid.UUID) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM routine_exercises WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting routine exercise: %w", err)
	}
	return nil
}

// ListRoutineTemplates retrieves a routine's exercise templates joined with
// exercise metadata, in routine order.
func (db *DB) ListRoutineTemplates(ctx context.Context, routineID uuid.UUID) ([]models.RoutineExerciseTemplate, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT re.id, re.exercise_id, e.name, re.sets, re.order_num, e.primary_muscle, e.category
		 FROM routine_exercises re
		 JOIN exercises e ON e.id = re.exercise_id
		 WHERE re.routine_id = ?
		 ORDER BY re.order_num ASC`,
		routineID)
	if err != nil {
		return nil, fmt.Errorf("querying routine templates: %w", err)
	}
	defer rows.Close()

	var result []models.RoutineExerciseTemplate
	for rows.Next() {
		var t models.RoutineExerciseTemplate
		if err := rows.Scan(&t.ID, &t.ExerciseID, &t.Name, &t.TargetSets,
			&t.OrderIndex, &t.PrimaryMuscle, &t.Category); err != nil {
			return nil, fmt.Errorf("scanning routine template: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
