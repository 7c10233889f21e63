package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liftlog.db")
	if err := RunMigrations(path, "../../migrations"); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedRoutine creates a routine with the given exercises, each with three
// target sets, and returns the routine and its templates.
func seedRoutine(t *testing.T, db *DB, exerciseNames ...string) (Routine, []models.RoutineExerciseTemplate) {
	t.Helper()
	ctx := context.Background()

	routine := Routine{ID: uuid.New(), Name: "Push Day"}
	if err := db.CreateRoutine(ctx, routine); err != nil {
		t.Fatalf("create routine: %v", err)
	}

	for i, name := range exerciseNames {
		ex := Exercise{ID: uuid.New(), Name: name, PrimaryMuscle: "chest", Category: "barbell"}
		if err := db.CreateExercise(ctx, ex); err != nil {
			t.Fatalf("create exercise: %v", err)
		}
		if _, err := db.AddRoutineExercise(ctx, routine.ID, ex.ID, i, 3); err != nil {
			t.Fatalf("add routine exercise: %v", err)
		}
	}

	templates, err := db.ListRoutineTemplates(ctx, routine.ID)
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	return routine, templates
}

// completedWorkout persists a finished workout with one exercise and the
// given set values, completed at the given time.
func completedWorkout(t *testing.T, db *DB, routineID, exerciseID uuid.UUID, completedAt time.Time, sets []models.SetPerformance) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	workoutID := uuid.New()
	err := db.InsertWorkout(ctx, WorkoutRow{
		ID:        workoutID,
		RoutineID: routineID,
		Name:      "Push Day",
		Date:      completedAt.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("insert workout: %v", err)
	}

	rowID, err := db.UpsertWorkoutExercise(ctx, WorkoutExerciseRow{
		WorkoutID:     workoutID,
		ExerciseID:    exerciseID,
		SetsCompleted: len(sets),
	})
	if err != nil {
		t.Fatalf("upsert workout exercise: %v", err)
	}

	for i, s := range sets {
		_, err := db.UpsertSet(ctx, SetRow{
			WorkoutExerciseID: rowID,
			SetNumber:         i + 1,
			Reps:              s.Reps,
			Weight:            s.Weight,
			Completed:         true,
		})
		if err != nil {
			t.Fatalf("insert set: %v", err)
		}
	}

	if err := db.CompleteWorkout(ctx, workoutID, completedAt, 3600); err != nil {
		t.Fatalf("complete workout: %v", err)
	}
	return workoutID
}

// TestUpsertWorkoutExerciseIdempotent verifies that repeated upserts keyed
// by (workout, exercise) reuse the same row instead of duplicating it.
func TestUpsertWorkoutExerciseIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	routine, templates := seedRoutine(t, db, "Bench Press")
	workoutID := uuid.New()
	if err := db.InsertWorkout(ctx, WorkoutRow{ID: workoutID, RoutineID: routine.ID, Name: routine.Name, Date: time.Now()}); err != nil {
		t.Fatalf("insert workout: %v", err)
	}

	first, err := db.UpsertWorkoutExercise(ctx, WorkoutExerciseRow{
		WorkoutID: workoutID, ExerciseID: templates[0].ExerciseID, SetsCompleted: 1,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := db.UpsertWorkoutExercise(ctx, WorkoutExerciseRow{
		WorkoutID: workoutID, ExerciseID: templates[0].ExerciseID, SetsCompleted: 2, Notes: "felt strong",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first != second {
		t.Errorf("upsert returned different ids: %s then %s", first, second)
	}

	rows, err := db.ListWorkoutExercises(ctx, workoutID)
	if err != nil {
		t.Fatalf("list workout exercises: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d exercise rows, want 1", len(rows))
	}
	if rows[0].SetsCompleted != 2 || rows[0].Notes != "felt strong" {
		t.Errorf("row not updated: %+v", rows[0])
	}
}

// TestSetInsertThenUpdate verifies the insert-then-remember-id flow: an
// update by id changes values without creating a second row.
func TestSetInsertThenUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	routine, templates := seedRoutine(t, db, "Squat")
	workoutID := uuid.New()
	if err := db.InsertWorkout(ctx, WorkoutRow{ID: workoutID, RoutineID: routine.ID, Name: routine.Name, Date: time.Now()}); err != nil {
		t.Fatalf("insert workout: %v", err)
	}
	rowID, err := db.UpsertWorkoutExercise(ctx, WorkoutExerciseRow{WorkoutID: workoutID, ExerciseID: templates[0].ExerciseID})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	setID, err := db.UpsertSet(ctx, SetRow{WorkoutExerciseID: rowID, SetNumber: 1, Reps: 5, Weight: 100})
	if err != nil {
		t.Fatalf("insert set: %v", err)
	}

	err = db.UpdateSet(ctx, SetRow{
		ID: setID, WorkoutExerciseID: rowID, SetNumber: 1,
		Reps: 6, Weight: 102.5, Completed: true, TrainingType: models.TrainingHeavy,
	})
	if err != nil {
		t.Fatalf("update set: %v", err)
	}

	sets, err := db.ListSets(ctx, rowID)
	if err != nil {
		t.Fatalf("list sets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d sets, want 1", len(sets))
	}
	got := sets[0]
	if got.Reps != 6 || got.Weight != 102.5 || !got.Completed || got.TrainingType != models.TrainingHeavy {
		t.Errorf("set not updated: %+v", got)
	}
}

// TestUpsertSetConflictReusesRow verifies an id-less write for an existing
// (exercise, set number) pair converges on the existing row and returns its
// id.
func TestUpsertSetConflictReusesRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	routine, templates := seedRoutine(t, db, "Press")
	workoutID := uuid.New()
	if err := db.InsertWorkout(ctx, WorkoutRow{ID: workoutID, RoutineID: routine.ID, Name: routine.Name, Date: time.Now()}); err != nil {
		t.Fatalf("insert workout: %v", err)
	}
	rowID, err := db.UpsertWorkoutExercise(ctx, WorkoutExerciseRow{WorkoutID: workoutID, ExerciseID: templates[0].ExerciseID})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	first, err := db.UpsertSet(ctx, SetRow{WorkoutExerciseID: rowID, SetNumber: 1, Reps: 5, Weight: 60})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := db.UpsertSet(ctx, SetRow{WorkoutExerciseID: rowID, SetNumber: 1, Reps: 6, Weight: 62.5})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first != second {
		t.Errorf("conflicting upsert returned new id: %s then %s", first, second)
	}

	sets, err := db.ListSets(ctx, rowID)
	if err != nil {
		t.Fatalf("list sets: %v", err)
	}
	if len(sets) != 1 || sets[0].Reps != 6 || sets[0].Weight != 62.5 {
		t.Errorf("sets = %+v, want single updated row", sets)
	}
}

// TestPreviousPerformanceMostRecent verifies the lookup returns set values
// from the most recent completed workout only, per exercise.
func TestPreviousPerformanceMostRecent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	routine, templates := seedRoutine(t, db, "Bench Press", "Overhead Press")
	bench, ohp := templates[0].ExerciseID, templates[1].ExerciseID

	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now().Add(-24 * time.Hour)

	completedWorkout(t, db, routine.ID, bench, older, []models.SetPerformance{{Reps: 5, Weight: 95}})
	completedWorkout(t, db, routine.ID, bench, newer, []models.SetPerformance{{Reps: 5, Weight: 100}, {Reps: 4, Weight: 100}})
	completedWorkout(t, db, routine.ID, ohp, older, []models.SetPerformance{{Reps: 8, Weight: 50}})

	perf, err := db.PreviousPerformance(ctx, routine.ID)
	if err != nil {
		t.Fatalf("previous performance: %v", err)
	}

	benchPerf := perf[bench]
	if len(benchPerf) != 2 {
		t.Fatalf("bench sets = %d, want 2 (from most recent workout only)", len(benchPerf))
	}
	if benchPerf[0].Weight != 100 {
		t.Errorf("bench weight = %v, want 100", benchPerf[0].Weight)
	}
	if len(perf[ohp]) != 1 || perf[ohp][0].Reps != 8 {
		t.Errorf("ohp perf = %v, want one set of 8 reps", perf[ohp])
	}
}

// TestPreviousPerformanceIgnoresIncomplete verifies that workouts without
// completed_at never feed the performance target.
func TestPreviousPerformanceIgnoresIncomplete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	routine, templates := seedRoutine(t, db, "Deadlift")
	exerciseID := templates[0].ExerciseID

	// An in-progress workout with logged sets but no completed_at.
	workoutID := uuid.New()
	if err := db.InsertWorkout(ctx, WorkoutRow{ID: workoutID, RoutineID: routine.ID, Name: routine.Name, Date: time.Now()}); err != nil {
		t.Fatalf("insert workout: %v", err)
	}
	rowID, err := db.UpsertWorkoutExercise(ctx, WorkoutExerciseRow{WorkoutID: workoutID, ExerciseID: exerciseID})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := db.UpsertSet(ctx, SetRow{WorkoutExerciseID: rowID, SetNumber: 1, Reps: 5, Weight: 180, Completed: true}); err != nil {
		t.Fatalf("insert set: %v", err)
	}

	perf, err := db.PreviousPerformance(ctx, routine.ID)
	if err != nil {
		t.Fatalf("previous performance: %v", err)
	}
	if len(perf) != 0 {
		t.Errorf("perf = %v, want empty for incomplete-only history", perf)
	}
}

// TestActiveWorkoutLookup verifies the incomplete-workout query used for
// resume-on-launch, including the no-rows case.
func TestActiveWorkoutLookup(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ActiveWorkout(ctx)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows with empty store, got %v", err)
	}

	routine, templates := seedRoutine(t, db, "Row")
	completedWorkout(t, db, routine.ID, templates[0].ExerciseID, time.Now().Add(-time.Hour), []models.SetPerformance{{Reps: 10, Weight: 60}})

	openID := uuid.New()
	if err := db.InsertWorkout(ctx, WorkoutRow{ID: openID, RoutineID: routine.ID, Name: routine.Name, Date: time.Now()}); err != nil {
		t.Fatalf("insert workout: %v", err)
	}

	active, err := db.ActiveWorkout(ctx)
	if err != nil {
		t.Fatalf("active workout: %v", err)
	}
	if active.ID != openID {
		t.Errorf("active workout = %s, want %s", active.ID, openID)
	}
}

// TestCompletedWorkoutTimes verifies the since filter and ordering.
func TestCompletedWorkoutTimes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	routine, templates := seedRoutine(t, db, "Curl")
	ex := templates[0].ExerciseID

	old := time.Now().Add(-40 * 24 * time.Hour)
	recent := time.Now().Add(-2 * 24 * time.Hour)
	completedWorkout(t, db, routine.ID, ex, old, []models.SetPerformance{{Reps: 10, Weight: 20}})
	completedWorkout(t, db, routine.ID, ex, recent, []models.SetPerformance{{Reps: 12, Weight: 20}})

	times, err := db.CompletedWorkoutTimes(ctx, time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("completed times: %v", err)
	}
	if len(times) != 1 {
		t.Fatalf("got %d completions in window, want 1", len(times))
	}
	if times[0].Unix() != recent.Unix() {
		t.Errorf("completion = %v, want %v", times[0], recent)
	}
}

// TestDeleteWorkoutCascades verifies cancelling with delete leaves no
// exercise or set rows behind.
func TestDeleteWorkoutCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	routine, templates := seedRoutine(t, db, "Dip")
	id := completedWorkout(t, db, routine.ID, templates[0].ExerciseID, time.Now(), []models.SetPerformance{{Reps: 8, Weight: 0}})

	if err := db.DeleteWorkout(ctx, id); err != nil {
		t.Fatalf("delete workout: %v", err)
	}

	if _, err := db.GetWorkout(ctx, id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("workout still present after delete: %v", err)
	}
	rows, err := db.ListWorkoutExercises(ctx, id)
	if err != nil {
		t.Fatalf("list workout exercises: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("exercise rows survived cascade: %d", len(rows))
	}
}
