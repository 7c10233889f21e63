package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkoutRow is one concrete execution of a routine. CompletedAt is nil
// while the workout is still in progress.
type WorkoutRow struct {
	ID          uuid.UUID  `json:"id"`
	RoutineID   uuid.UUID  `json:"routine_id"`
	Name        string     `json:"name"`
	Date        time.Time  `json:"date"`
	DurationSec int        `json:"duration_sec"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// InsertWorkout inserts a workout row.
func (db *DB) InsertWorkout(ctx context.Context, row WorkoutRow) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO workouts (id, routine_id, name, date, duration, completed_at, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.RoutineID, row.Name, row.Date, row.DurationSec, row.CompletedAt, row.Notes)
	if err != nil {
		return fmt.Errorf("inserting workout: %w", err)
	}
	return nil
}

// UpsertWorkout writes the workout row keyed by id: created if absent,
// refreshed (duration and notes only) if present. The insert arm covers the
// deferred-creation path where the row could not be created at session
// start; completed_at is never touched here. Duration is recomputed by the
// caller from wall clock, never accumulated.
func (db *DB) UpsertWorkout(ctx context.Context, row WorkoutRow) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO workouts (id, routine_id, name, date, duration, completed_at, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET duration = excluded.duration, notes = excluded.notes`,
		row.ID, row.RoutineID, row.Name, row.Date, row.DurationSec, row.CompletedAt, row.Notes)
	if err != nil {
		return fmt.Errorf("upserting workout: %w", err)
	}
	return nil
}

// CompleteWorkout marks a workout finished with its final duration.
func (db *DB) CompleteWorkout(ctx context.Context, id uuid.UUID, completedAt time.Time, durationSec int) error {
	_, err := db.sql.ExecContext(ctx,
		`UPDATE workouts SET completed_at = ?, duration = ? WHERE id = ?`,
		completedAt, durationSec, id)
	if err != nil {
		return fmt.Errorf("completing workout: %w", err)
	}
	return nil
}

// DeleteWorkout removes a workout and, via cascade, its exercises and sets.
// Used when a cancelled workout should leave no trace in history.
func (db *DB) DeleteWorkout(ctx context.Context, id uuid.UUID) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM workouts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting workout: %w", err)
	}
	return nil
}

// GetWorkout retrieves a single workout by id. Returns sql.ErrNoRows
// (wrapped) if it does not exist.
func (db *DB) GetWorkout(ctx context.Context, id uuid.UUID) (WorkoutRow, error) {
	var w WorkoutRow
	err := db.sql.QueryRowContext(ctx,
		`SELECT id, routine_id, name, date, duration, completed_at, notes
		 FROM workouts WHERE id = ?`, id).
		Scan(&w.ID, &w.RoutineID, &w.Name, &w.Date, &w.DurationSec, &w.CompletedAt, &w.Notes)
	if err != nil {
		return WorkoutRow{}, fmt.Errorf("querying workout: %w", err)
	}
	return w, nil
}

// ActiveWorkout returns the most recently started incomplete workout, or
// sql.ErrNoRows (wrapped) if none exists. Used on launch to offer resume.
func (db *DB) ActiveWorkout(ctx context.Context) (WorkoutRow, error) {
	var w WorkoutRow
	err := db.sql.QueryRowContext(ctx,
		`SELECT id, routine_id, name, date, duration, completed_at, notes
		 FROM workouts
		 WHERE completed_at IS NULL
		 ORDER BY date DESC LIMIT 1`).
		Scan(&w.ID, &w.RoutineID, &w.Name, &w.Date, &w.DurationSec, &w.CompletedAt, &w.Notes)
	if err != nil {
		return WorkoutRow{}, fmt.Errorf("querying active workout: %w", err)
	}
	return w, nil
}

// QueryWorkouts retrieves workouts in a time range, newest first.
func (db *DB) QueryWorkouts(ctx context.Context, start, end time.Time) ([]WorkoutRow, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, routine_id, name, date, duration, completed_at, notes
		 FROM workouts
		 WHERE date >= ? AND date < ?
		 ORDER BY date DESC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying workouts: %w", err)
	}
	defer rows.Close()

	var result []WorkoutRow
	for rows.Next() {
		var w WorkoutRow
		if err := rows.Scan(&w.ID, &w.RoutineID, &w.Name, &w.Date, &w.DurationSec,
			&w.CompletedAt, &w.Notes); err != nil {
			return nil, fmt.Errorf("scanning workout: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}
