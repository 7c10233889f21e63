package models

import (
	"time"

	"github.com/google/uuid"
)

// TrainingType classifies the intended intensity of a set.
type TrainingType string

const (
	TrainingHeavy    TrainingType = "heavy"
	TrainingModerate TrainingType = "moderate"
	TrainingLight    TrainingType = "light"
)

// SessionMode is the UI visibility of the active session. Minimizing is
// purely cosmetic: timers keep running and persistence keeps flowing.
type SessionMode string

const (
	ModeActive    SessionMode = "active"
	ModeMinimized SessionMode = "minimized"
)

// RoutineExerciseTemplate is the immutable per-exercise entry of a routine.
// It defines how many sets a fresh workout starts with. Owned by the routine
// CRUD layer; the session engine only reads it.
type RoutineExerciseTemplate struct {
	ID            uuid.UUID `json:"id"`
	ExerciseID    uuid.UUID `json:"exercise_id"`
	Name          string    `json:"name"`
	TargetSets    int       `json:"target_sets"`
	OrderIndex    int       `json:"order_index"`
	PrimaryMuscle string    `json:"primary_muscle"`
	Category      string    `json:"category"`
}

// Set is one logged attempt within an exercise. ID is nil until the row has
// been durably inserted; once assigned it never changes, so later saves
// become updates instead of duplicate inserts.
type Set struct {
	ID              *uuid.UUID   `json:"id,omitempty"`
	SetNumber       int          `json:"set_number"`
	Reps            int          `json:"reps"`
	Weight          float64      `json:"weight"`
	RestTimeSeconds int          `json:"rest_time_seconds"`
	Completed       bool         `json:"completed"`
	TrainingType    TrainingType `json:"training_type,omitempty"`
	Notes           string       `json:"notes,omitempty"`
}

// Touched reports whether the set carries any user activity worth persisting.
func (s *Set) Touched() bool {
	return s.Completed || s.Reps > 0 || s.Weight > 0 || s.Notes != ""
}

// WorkoutExerciseState is the in-memory progress of one routine exercise
// within the active workout. RowID is the workout_exercises row id, nil
// until the exercise has been persisted. Exercises with no activity are
// never written, so RowID staying nil for an untouched exercise is normal.
type WorkoutExerciseState struct {
	TemplateID    uuid.UUID  `json:"template_id"`
	ExerciseID    uuid.UUID  `json:"exercise_id"`
	RowID         *uuid.UUID `json:"row_id,omitempty"`
	Name          string     `json:"name"`
	TargetSets    int        `json:"target_sets"`
	OrderIndex    int        `json:"order_index"`
	PrimaryMuscle string     `json:"primary_muscle"`
	Category      string     `json:"category"`
	Sets          []Set      `json:"sets"`
	Notes         string     `json:"notes,omitempty"`
}

// CompletedSetCount is always derived from the sets, never stored.
func (e *WorkoutExerciseState) CompletedSetCount() int {
	n := 0
	for i := range e.Sets {
		if e.Sets[i].Completed {
			n++
		}
	}
	return n
}

// Touched reports whether the exercise has any activity that warrants a
// durable row: a completed set, non-zero reps or weight, or notes.
func (e *WorkoutExerciseState) Touched() bool {
	if e.Notes != "" {
		return true
	}
	for i := range e.Sets {
		if e.Sets[i].Touched() {
			return true
		}
	}
	return false
}

// WorkoutSessionState is the authoritative in-memory representation of the
// workout in progress. WorkoutID is nil until the workout row is durably
// created, then becomes the join key for all exercise and set writes.
//
// PendingSetDeletes holds ids of already-persisted sets the user removed;
// the persistence gateway deletes them on the next save.
type WorkoutSessionState struct {
	WorkoutID         *uuid.UUID             `json:"workout_id,omitempty"`
	RoutineID         uuid.UUID              `json:"routine_id"`
	RoutineName       string                 `json:"routine_name"`
	StartTime         time.Time              `json:"start_time"`
	Exercises         []WorkoutExerciseState `json:"exercises"`
	Notes             string                 `json:"notes,omitempty"`
	Mode              SessionMode            `json:"mode"`
	PendingSetDeletes []uuid.UUID            `json:"-"`
}

// Elapsed is the wall-clock workout duration at the given instant. Duration
// is always recomputed from StartTime, never accumulated, so it cannot
// drift across suspensions.
func (s *WorkoutSessionState) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Clone returns a deep copy, used for read-only snapshots handed to the UI
// and for save requests handed to the persistence gateway.
func (s *WorkoutSessionState) Clone() *WorkoutSessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.WorkoutID = cloneID(s.WorkoutID)
	out.Exercises = make([]WorkoutExerciseState, len(s.Exercises))
	for i, ex := range s.Exercises {
		ce := ex
		ce.RowID = cloneID(ex.RowID)
		ce.Sets = make([]Set, len(ex.Sets))
		for j, set := range ex.Sets {
			cs := set
			cs.ID = cloneID(set.ID)
			ce.Sets[j] = cs
		}
		out.Exercises[i] = ce
	}
	out.PendingSetDeletes = append([]uuid.UUID(nil), s.PendingSetDeletes...)
	return &out
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// SetPerformance is a single prior set shown as a performance target.
type SetPerformance struct {
	Reps   int     `json:"reps"`
	Weight float64 `json:"weight"`
}
