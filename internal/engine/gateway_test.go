package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
	"github.com/google/uuid"
)

// TestBackoffDoubling verifies the exponential schedule and its cap, with
// jitter disabled for determinism.
func TestBackoffDoubling(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		350 * time.Millisecond, // 400ms capped
		350 * time.Millisecond,
	}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

// TestBackoffJitterBounds verifies jitter only ever adds, within its
// fraction.
func TestBackoffJitterBounds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Jitter: 0.5}
	for range 50 {
		d := p.Backoff(1)
		if d < 100*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered backoff %v outside [100ms, 150ms]", d)
		}
	}
}

// TestSaveCreatesWorkoutWhenMissing verifies the gateway creates the workout
// row itself when the start-time insert was deferred, and hands the id back
// through the persisted snapshot.
func TestSaveCreatesWorkoutWhenMissing(t *testing.T) {
	db := testStore(t)
	routine, templates := seedRoutine(t, db, "Bench Press")

	log := slog.New(slog.DiscardHandler)
	gw := NewGateway(db, RealClock(), log, testBackground, testUrgent)
	defer gw.Close()

	var absorbed *models.WorkoutSessionState
	done := make(chan struct{})
	gw.OnPersisted(func(p *models.WorkoutSessionState, _ []uuid.UUID) {
		absorbed = p
		close(done)
	})

	snap := &models.WorkoutSessionState{
		RoutineID:   routine.ID,
		RoutineName: routine.Name,
		StartTime:   time.Now().Add(-10 * time.Minute),
		Mode:        models.ModeActive,
		Exercises: []models.WorkoutExerciseState{{
			ExerciseID: templates[0].ExerciseID,
			Name:       templates[0].Name,
			Sets:       []models.Set{{SetNumber: 1, Reps: 5, Weight: 100, Completed: true}},
		}},
	}

	if err := gw.SaveAndWait(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	<-done

	if absorbed.WorkoutID == nil {
		t.Fatal("gateway did not assign a workout id")
	}
	w, err := db.GetWorkout(context.Background(), *absorbed.WorkoutID)
	if err != nil {
		t.Fatalf("get workout: %v", err)
	}
	if w.DurationSec < 9*60 {
		t.Errorf("duration = %ds, want wall-clock elapsed of about 10m", w.DurationSec)
	}
}

// TestDeferredWorkoutRowCreatedOnce verifies the deferred-creation path: a
// session whose start-time insert failed keeps its preassigned workout id,
// so independent snapshots saved before any id writeback all upsert the
// same durable row instead of forking duplicates.
func TestDeferredWorkoutRowCreatedOnce(t *testing.T) {
	db := testStore(t)
	routine, templates := seedRoutine(t, db, "Bench Press")

	log := slog.New(slog.DiscardHandler)
	gw := NewGateway(db, RealClock(), log, testBackground, testUrgent)
	defer gw.Close()

	// Id assigned in memory, no durable row yet.
	wid := uuid.New()
	base := models.WorkoutSessionState{
		WorkoutID:   &wid,
		RoutineID:   routine.ID,
		RoutineName: routine.Name,
		StartTime:   time.Now().Add(-5 * time.Minute),
		Mode:        models.ModeActive,
	}

	first := base.Clone()
	first.Exercises = []models.WorkoutExerciseState{{
		ExerciseID: templates[0].ExerciseID,
		Sets:       []models.Set{{SetNumber: 1, Reps: 5, Weight: 100, Completed: true}},
	}}
	if err := gw.SaveAndWait(context.Background(), first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Second snapshot cloned before the first save's writeback: same id,
	// still no row ids.
	second := base.Clone()
	second.Notes = "second save"
	second.Exercises = []models.WorkoutExerciseState{{
		ExerciseID: templates[0].ExerciseID,
		Sets:       []models.Set{{SetNumber: 1, Reps: 6, Weight: 100, Completed: true}},
	}}
	if err := gw.SaveAndWait(context.Background(), second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	workouts, err := db.QueryWorkouts(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("query workouts: %v", err)
	}
	if len(workouts) != 1 {
		t.Fatalf("got %d durable workout rows for one logical workout, want 1", len(workouts))
	}
	if workouts[0].ID != wid {
		t.Errorf("durable row id = %s, want the preassigned %s", workouts[0].ID, wid)
	}
	if workouts[0].Notes != "second save" {
		t.Errorf("notes = %q, want the newest snapshot's", workouts[0].Notes)
	}

	rows, err := db.ListWorkoutExercises(context.Background(), wid)
	if err != nil {
		t.Fatalf("list workout exercises: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d exercise rows, want 1", len(rows))
	}
}

// TestUpsertWorkoutPreservesCompletion verifies a progress save arriving
// after completion cannot clear completed_at.
func TestUpsertWorkoutPreservesCompletion(t *testing.T) {
	db := testStore(t)
	routine, _ := seedRoutine(t, db, "Bench Press")

	ctx := context.Background()
	wid := uuid.New()
	if err := db.InsertWorkout(ctx, workoutRowFor(wid, routine.ID, routine.Name)); err != nil {
		t.Fatalf("insert workout: %v", err)
	}
	completedAt := time.Now().Add(-time.Minute)
	if err := db.CompleteWorkout(ctx, wid, completedAt, 1800); err != nil {
		t.Fatalf("complete workout: %v", err)
	}

	err := db.UpsertWorkout(ctx, storage.WorkoutRow{
		ID: wid, RoutineID: routine.ID, Name: routine.Name,
		Date: time.Now().Add(-31 * time.Minute), DurationSec: 1860, Notes: "late save",
	})
	if err != nil {
		t.Fatalf("upsert workout: %v", err)
	}

	w, err := db.GetWorkout(ctx, wid)
	if err != nil {
		t.Fatalf("get workout: %v", err)
	}
	if w.CompletedAt == nil {
		t.Fatal("completed_at cleared by a late progress save")
	}
	if w.DurationSec != 1860 || w.Notes != "late save" {
		t.Errorf("duration/notes not refreshed: %+v", w)
	}
}

// TestSaveSkipsUntouchedExercises verifies placeholder exercises never get
// durable rows.
func TestSaveSkipsUntouchedExercises(t *testing.T) {
	db := testStore(t)
	routine, templates := seedRoutine(t, db, "Bench Press", "Overhead Press")

	log := slog.New(slog.DiscardHandler)
	gw := NewGateway(db, RealClock(), log, testBackground, testUrgent)
	defer gw.Close()

	wid := uuid.New()
	if err := db.InsertWorkout(context.Background(), workoutRowFor(wid, routine.ID, routine.Name)); err != nil {
		t.Fatalf("insert workout: %v", err)
	}

	snap := &models.WorkoutSessionState{
		WorkoutID: &wid,
		RoutineID: routine.ID,
		StartTime: time.Now(),
		Exercises: []models.WorkoutExerciseState{
			{
				ExerciseID: templates[0].ExerciseID,
				Sets:       []models.Set{{SetNumber: 1, Reps: 5, Weight: 60, Completed: true}},
			},
			{
				// Untouched: three empty sets only.
				ExerciseID: templates[1].ExerciseID,
				Sets:       []models.Set{{SetNumber: 1}, {SetNumber: 2}, {SetNumber: 3}},
			},
		},
	}

	if err := gw.SaveAndWait(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	rows, err := db.ListWorkoutExercises(context.Background(), wid)
	if err != nil {
		t.Fatalf("list workout exercises: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d exercise rows, want 1", len(rows))
	}
	if rows[0].ExerciseID != templates[0].ExerciseID {
		t.Errorf("persisted exercise = %s, want the touched one", rows[0].ExerciseID)
	}
}

// TestRetryExhaustion verifies that a store that keeps failing surfaces a
// typed exhaustion error carrying the attempt count.
func TestRetryExhaustion(t *testing.T) {
	db := testStore(t)
	routine, _ := seedRoutine(t, db, "Bench Press")

	log := slog.New(slog.DiscardHandler)
	gw := NewGateway(db, RealClock(), log, testBackground, testUrgent)
	defer gw.Close()

	db.Close() // every subsequent write fails

	snap := &models.WorkoutSessionState{
		RoutineID: routine.ID,
		StartTime: time.Now(),
		Mode:      models.ModeActive,
	}
	err := gw.SaveAndWait(context.Background(), snap)

	var exhausted *models.PersistenceExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want PersistenceExhaustedError", err)
	}
	if exhausted.Attempts != testUrgent.MaxAttempts {
		t.Errorf("attempts = %d, want %d", exhausted.Attempts, testUrgent.MaxAttempts)
	}
	if exhausted.Last == nil {
		t.Error("exhaustion error should carry the last cause")
	}
}

// TestCoalescedSavesConvergeOnNewest verifies that a burst of queued saves
// ends with the durable rows matching the newest snapshot.
func TestCoalescedSavesConvergeOnNewest(t *testing.T) {
	db := testStore(t)
	routine, templates := seedRoutine(t, db, "Curl")

	log := slog.New(slog.DiscardHandler)
	gw := NewGateway(db, RealClock(), log, testBackground, testUrgent)
	defer gw.Close()

	wid := uuid.New()
	if err := db.InsertWorkout(context.Background(), workoutRowFor(wid, routine.ID, routine.Name)); err != nil {
		t.Fatalf("insert workout: %v", err)
	}

	base := models.WorkoutSessionState{
		WorkoutID: &wid,
		RoutineID: routine.ID,
		StartTime: time.Now(),
	}
	for reps := 1; reps <= 5; reps++ {
		snap := base.Clone()
		snap.Exercises = []models.WorkoutExerciseState{{
			ExerciseID: templates[0].ExerciseID,
			Sets:       []models.Set{{SetNumber: 1, Reps: reps, Weight: 20, Completed: true}},
		}}
		if reps < 5 {
			gw.Save(snap)
		} else if err := gw.SaveAndWait(context.Background(), snap); err != nil {
			t.Fatalf("final save: %v", err)
		}
	}

	rows, err := db.ListWorkoutExercises(context.Background(), wid)
	if err != nil {
		t.Fatalf("list workout exercises: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d exercise rows, want 1", len(rows))
	}
	sets, err := db.ListSets(context.Background(), rows[0].ID)
	if err != nil {
		t.Fatalf("list sets: %v", err)
	}
	var reps []int
	for _, s := range sets {
		if s.SetNumber == 1 {
			reps = append(reps, s.Reps)
		}
	}
	if len(reps) != 1 || reps[0] != 5 {
		t.Errorf("durable set 1 reps = %v, want [5]", reps)
	}
}

func workoutRowFor(id, routineID uuid.UUID, name string) storage.WorkoutRow {
	return storage.WorkoutRow{ID: id, RoutineID: routineID, Name: name, Date: time.Now()}
}
