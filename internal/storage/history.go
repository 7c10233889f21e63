package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// PreviousPerformance returns, per exercise of the given routine, the
// ordered set values from the most recent completed workout that logged
// that exercise. Exercises with no prior record are simply absent.
func (db *DB) PreviousPerformance(ctx context.Context, routineID uuid.UUID) (map[uuid.UUID][]models.SetPerformance, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT we.exercise_id, s.reps, s.weight
		 FROM sets s
		 JOIN workout_exercises we ON we.id = s.workout_exercise_id
		 JOIN workouts w ON w.id = we.workout_id
		 WHERE w.routine_id = ?
		   AND w.completed_at IS NOT NULL
		   AND w.id = (
		       SELECT w2.id
		       FROM workouts w2
		       JOIN workout_exercises we2 ON we2.workout_id = w2.id
		       WHERE w2.routine_id = w.routine_id
		         AND w2.completed_at IS NOT NULL
		         AND we2.exercise_id = we.exercise_id
		       ORDER BY w2.completed_at DESC
		       LIMIT 1)
		 ORDER BY we.exercise_id, s.set_number ASC`,
		routineID)
	if err != nil {
		return nil, fmt.Errorf("querying previous performance: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]models.SetPerformance)
	for rows.Next() {
		var exerciseID uuid.UUID
		var p models.SetPerformance
		if err := rows.Scan(&exerciseID, &p.Reps, &p.Weight); err != nil {
			return nil, fmt.Errorf("scanning previous performance: %w", err)
		}
		result[exerciseID] = append(result[exerciseID], p)
	}
	return result, rows.Err()
}

// CompletedWorkoutTimes returns the completion timestamps of all workouts
// finished at or after the given instant, oldest first. Callers collapse
// these to local calendar dates.
func (db *DB) CompletedWorkoutTimes(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT completed_at FROM workouts
		 WHERE completed_at IS NOT NULL AND completed_at >= ?
		 ORDER BY completed_at ASC`,
		since)
	if err != nil {
		return nil, fmt.Errorf("querying completed workouts: %w", err)
	}
	defer rows.Close()

	var result []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning completion time: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
