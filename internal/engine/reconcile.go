package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
	"github.com/google/uuid"
)

// Reconciler rebuilds session state from durable partial progress, and
// re-syncs in-memory state against the store when external changes are
// suspected (e.g. returning to the foreground).
type Reconciler struct {
	store       *storage.DB
	log         *slog.Logger
	defaultRest int
}

// NewReconciler creates a reconciler. defaultRest is the rest time, in
// seconds, given to synthesized empty sets.
func NewReconciler(store *storage.DB, log *slog.Logger, defaultRest int) *Reconciler {
	return &Reconciler{store: store, log: log, defaultRest: defaultRest}
}

// BuildResume merges the workout's routine template with whatever durable
// progress exists, producing a complete gap-filled exercise list:
//
//   - every template exercise appears exactly once;
//   - already-logged sets are used as saved, padded with fresh empty sets up
//     to the template's target count — never truncated, so editing a routine
//     mid-workout cannot destroy logged extra sets;
//   - exercises with no durable rows get a full list of empty sets.
func (r *Reconciler) BuildResume(ctx context.Context, workoutID uuid.UUID) (*models.WorkoutSessionState, error) {
	workout, err := r.store.GetWorkout(ctx, workoutID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.WorkoutNotFoundError{WorkoutID: workoutID}
		}
		return nil, err
	}

	templates, err := r.store.ListRoutineTemplates(ctx, workout.RoutineID)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, &models.EmptyRoutineError{RoutineID: workout.RoutineID}
	}

	routineName := workout.Name
	if routine, err := r.store.GetRoutine(ctx, workout.RoutineID); err == nil {
		routineName = routine.Name
	}

	durable, err := r.loadDurable(ctx, workoutID)
	if err != nil {
		return nil, err
	}

	wid := workout.ID
	state := &models.WorkoutSessionState{
		WorkoutID:   &wid,
		RoutineID:   workout.RoutineID,
		RoutineName: routineName,
		StartTime:   workout.Date,
		Notes:       workout.Notes,
		Mode:        models.ModeActive,
	}

	claimed := make(map[uuid.UUID]bool)
	for _, tpl := range templates {
		ex := models.WorkoutExerciseState{
			TemplateID:    tpl.ID,
			ExerciseID:    tpl.ExerciseID,
			Name:          tpl.Name,
			TargetSets:    tpl.TargetSets,
			OrderIndex:    tpl.OrderIndex,
			PrimaryMuscle: tpl.PrimaryMuscle,
			Category:      tpl.Category,
		}
		if d, ok := durable[tpl.ExerciseID]; ok {
			claimed[tpl.ExerciseID] = true
			rowID := d.row.ID
			ex.RowID = &rowID
			ex.Notes = d.row.Notes
			ex.Sets = setsFromRows(d.sets)
		}
		padSets(&ex, tpl.TargetSets, r.defaultRest)
		state.Exercises = append(state.Exercises, ex)
	}

	// Durable rows whose template was removed mid-workout: the logged work
	// is kept and shown after the template exercises.
	order := len(templates)
	for exerciseID, d := range durable {
		if claimed[exerciseID] {
			continue
		}
		name := "Removed exercise"
		if meta, err := r.store.GetExercise(ctx, exerciseID); err == nil {
			name = meta.Name
		}
		rowID := d.row.ID
		state.Exercises = append(state.Exercises, models.WorkoutExerciseState{
			ExerciseID: exerciseID,
			RowID:      &rowID,
			Name:       name,
			TargetSets: len(d.sets),
			OrderIndex: order,
			Notes:      d.row.Notes,
			Sets:       setsFromRows(d.sets),
		})
		order++
	}

	return state, nil
}

// Reconcile re-reads durable rows and merges them into the in-memory state,
// last write wins per field. Only fields that actually differ are mutated,
// and the returned flag reports whether anything changed, so callers can
// skip re-rendering on a no-op. In-memory sets with no durable counterpart
// are presumed not-yet-saved and are never discarded.
func (r *Reconciler) Reconcile(ctx context.Context, state *models.WorkoutSessionState) (bool, error) {
	if state.WorkoutID == nil {
		// Nothing was ever persisted; there is nothing to merge.
		return false, nil
	}

	durable, err := r.loadDurable(ctx, *state.WorkoutID)
	if err != nil {
		return false, err
	}

	changed := false
	for i := range state.Exercises {
		ex := &state.Exercises[i]
		d, ok := durable[ex.ExerciseID]
		if !ok {
			continue
		}
		if ex.RowID == nil {
			rowID := d.row.ID
			ex.RowID = &rowID
			changed = true
		}
		if ex.Notes != d.row.Notes {
			ex.Notes = d.row.Notes
			changed = true
		}
		if mergeSets(ex, d.sets) {
			changed = true
		}
	}
	return changed, nil
}

type durableExercise struct {
	row  storage.WorkoutExerciseRow
	sets []storage.SetRow
}

func (r *Reconciler) loadDurable(ctx context.Context, workoutID uuid.UUID) (map[uuid.UUID]durableExercise, error) {
	rows, err := r.store.ListWorkoutExercises(ctx, workoutID)
	if err != nil {
		return nil, err
	}

	result := make(map[uuid.UUID]durableExercise, len(rows))
	for _, row := range rows {
		sets, err := r.store.ListSets(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("loading sets for exercise %s: %w", row.ExerciseID, err)
		}
		result[row.ExerciseID] = durableExercise{row: row, sets: sets}
	}
	return result, nil
}

func setsFromRows(rows []storage.SetRow) []models.Set {
	sets := make([]models.Set, 0, len(rows))
	for _, row := range rows {
		id := row.ID
		sets = append(sets, models.Set{
			ID:              &id,
			SetNumber:       row.SetNumber,
			Reps:            row.Reps,
			Weight:          row.Weight,
			RestTimeSeconds: row.RestTimeSeconds,
			Completed:       row.Completed,
			TrainingType:    row.TrainingType,
			Notes:           row.Notes,
		})
	}
	return sets
}

// padSets appends fresh empty sets until the exercise has at least target
// sets. Numbering continues from the highest existing set number.
func padSets(ex *models.WorkoutExerciseState, target, defaultRest int) {
	next := 0
	for i := range ex.Sets {
		if ex.Sets[i].SetNumber > next {
			next = ex.Sets[i].SetNumber
		}
	}
	for len(ex.Sets) < target {
		next++
		ex.Sets = append(ex.Sets, models.Set{
			SetNumber:       next,
			RestTimeSeconds: defaultRest,
		})
	}
}

// mergeSets applies durable set values onto the in-memory exercise. Sets
// are matched by id first, then by set number; unmatched durable sets are
// appended, unmatched in-memory sets are kept as-is.
func mergeSets(ex *models.WorkoutExerciseState, durable []storage.SetRow) bool {
	changed := false
	for _, row := range durable {
		set := findSet(ex, row)
		if set == nil {
			id := row.ID
			ex.Sets = append(ex.Sets, models.Set{
				ID:              &id,
				SetNumber:       row.SetNumber,
				Reps:            row.Reps,
				Weight:          row.Weight,
				RestTimeSeconds: row.RestTimeSeconds,
				Completed:       row.Completed,
				TrainingType:    row.TrainingType,
				Notes:           row.Notes,
			})
			changed = true
			continue
		}
		if set.ID == nil {
			id := row.ID
			set.ID = &id
			changed = true
		}
		if set.Reps != row.Reps {
			set.Reps = row.Reps
			changed = true
		}
		if set.Weight != row.Weight {
			set.Weight = row.Weight
			changed = true
		}
		if set.RestTimeSeconds != row.RestTimeSeconds {
			set.RestTimeSeconds = row.RestTimeSeconds
			changed = true
		}
		if set.Completed != row.Completed {
			set.Completed = row.Completed
			changed = true
		}
		if set.TrainingType != row.TrainingType {
			set.TrainingType = row.TrainingType
			changed = true
		}
		if set.Notes != row.Notes {
			set.Notes = row.Notes
			changed = true
		}
	}
	return changed
}

func findSet(ex *models.WorkoutExerciseState, row storage.SetRow) *models.Set {
	for i := range ex.Sets {
		if ex.Sets[i].ID != nil && *ex.Sets[i].ID == row.ID {
			return &ex.Sets[i]
		}
	}
	for i := range ex.Sets {
		if ex.Sets[i].ID == nil && ex.Sets[i].SetNumber == row.SetNumber {
			return &ex.Sets[i]
		}
	}
	return nil
}
