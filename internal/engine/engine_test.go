package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
	"github.com/google/uuid"
)

const testDefaultRest = 90

// zero-delay policies keep retry paths fast under test.
var (
	testBackground = RetryPolicy{MaxAttempts: 2}
	testUrgent     = RetryPolicy{MaxAttempts: 3}
)

func testStore(t *testing.T) *storage.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liftlog.db")
	if err := storage.RunMigrations(path, "../../migrations"); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	db, err := storage.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedRoutine creates a routine whose exercises each start with three target
// sets.
func seedRoutine(t *testing.T, db *storage.DB, exerciseNames ...string) (storage.Routine, []models.RoutineExerciseTemplate) {
	t.Helper()
	ctx := context.Background()

	routine := storage.Routine{ID: uuid.New(), Name: "Push Day"}
	if err := db.CreateRoutine(ctx, routine); err != nil {
		t.Fatalf("create routine: %v", err)
	}
	for i, name := range exerciseNames {
		ex := storage.Exercise{ID: uuid.New(), Name: name, PrimaryMuscle: "chest", Category: "barbell"}
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

// newTestEngine wires a session engine onto the given store with discard
// logging and zero-delay retry policies.
func newTestEngine(t *testing.T, db *storage.DB) (*Session, *Gateway) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	gw := NewGateway(db, RealClock(), log, testBackground, testUrgent)
	t.Cleanup(gw.Close)
	rec := NewReconciler(db, log, testDefaultRest)
	prev := NewPreviousPerformance(db)
	return NewSession(db, gw, rec, prev, RealClock(), log, testDefaultRest), gw
}

// flush forces a synchronous save of the current session state so tests can
// assert on durable rows deterministically.
func flush(t *testing.T, gw *Gateway, s *Session) {
	t.Helper()
	snap := s.Snapshot()
	if snap == nil {
		t.Fatal("flush: no active session")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gw.SaveAndWait(ctx, snap); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func boolp(v bool) *bool { return &v }

func strp(v string) *string { return &v }

func typep(v models.TrainingType) *models.TrainingType { return &v }
