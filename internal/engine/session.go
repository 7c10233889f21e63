package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
	"github.com/google/uuid"
)

var (
	// ErrNoSession means an operation requires an active workout.
	ErrNoSession = errors.New("no workout in progress")
	// ErrExerciseNotFound means the exercise is not part of the session.
	ErrExerciseNotFound = errors.New("exercise not in session")
	// ErrSetNotFound means no set with the given number exists.
	ErrSetNotFound = errors.New("set not in exercise")
	// ErrLastSet guards against removing the only remaining set.
	ErrLastSet = errors.New("cannot remove the last set of an exercise")
)

// SetUpdate carries the fields of a log-set mutation. Nil fields are left
// untouched.
type SetUpdate struct {
	Reps            *int                 `json:"reps,omitempty"`
	Weight          *float64             `json:"weight,omitempty"`
	RestTimeSeconds *int                 `json:"rest_time_seconds,omitempty"`
	Completed       *bool                `json:"completed,omitempty"`
	TrainingType    *models.TrainingType `json:"training_type,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
}

// Session is the state machine owning the single authoritative in-memory
// workout. At most one workout is active process-wide; starting or resuming
// a second one is rejected with AlreadyActiveError. UI layers only ever see
// deep-copied snapshots.
type Session struct {
	mu    sync.Mutex
	state *models.WorkoutSessionState

	store       *storage.DB
	gw          *Gateway
	rec         *Reconciler
	prev        *PreviousPerformance
	clock       Clock
	log         *slog.Logger
	defaultRest int
}

// NewSession wires the session controller to its collaborators and
// registers itself as the gateway's id-writeback target.
func NewSession(store *storage.DB, gw *Gateway, rec *Reconciler, prev *PreviousPerformance, clock Clock, log *slog.Logger, defaultRest int) *Session {
	s := &Session{
		store:       store,
		gw:          gw,
		rec:         rec,
		prev:        prev,
		clock:       clock,
		log:         log,
		defaultRest: defaultRest,
	}
	gw.OnPersisted(s.absorb)
	return s
}

// Start begins a fresh workout from a routine. The durable workout row is
// created immediately so the id can be handed to a caller that hits
// AlreadyActiveError later; if that insert fails the session still starts,
// keeps the generated id, and the gateway creates the row under that same
// id on the first successful save. The id is assigned before any snapshot
// can be cloned, so deferred creation can never fork two durable rows for
// one logical workout.
func (s *Session) Start(ctx context.Context, routineID uuid.UUID) (*models.WorkoutSessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		return nil, s.alreadyActiveLocked()
	}

	routine, err := s.store.GetRoutine(ctx, routineID)
	if err != nil {
		return nil, fmt.Errorf("loading routine: %w", err)
	}
	templates, err := s.store.ListRoutineTemplates(ctx, routineID)
	if err != nil {
		return nil, fmt.Errorf("loading routine templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, &models.NoExercisesError{RoutineID: routineID}
	}

	now := s.clock.Now()
	state := &models.WorkoutSessionState{
		RoutineID:   routineID,
		RoutineName: routine.Name,
		StartTime:   now,
		Mode:        models.ModeActive,
	}
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
		padSets(&ex, tpl.TargetSets, s.defaultRest)
		state.Exercises = append(state.Exercises, ex)
	}

	id := uuid.New()
	state.WorkoutID = &id
	err = s.store.InsertWorkout(ctx, storage.WorkoutRow{
		ID:        id,
		RoutineID: routineID,
		Name:      routine.Name,
		Date:      now,
	})
	if err != nil {
		s.log.Warn("deferring workout row creation", "workout_id", id, "error", err)
	}

	s.state = state
	return state.Clone(), nil
}

// Resume rebuilds the session from durable partial progress and returns the
// state together with the previous-performance index for display. The
// operation is cancellable: if ctx is done by the time the merge finishes,
// the result is discarded and nothing is applied.
func (s *Session) Resume(ctx context.Context, workoutID uuid.UUID) (*models.WorkoutSessionState, map[uuid.UUID][]models.SetPerformance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		return nil, nil, s.alreadyActiveLocked()
	}

	state, err := s.rec.BuildResume(ctx, workoutID)
	if err != nil {
		return nil, nil, err
	}

	templates := make([]models.RoutineExerciseTemplate, 0, len(state.Exercises))
	for _, ex := range state.Exercises {
		if ex.TemplateID != uuid.Nil {
			templates = append(templates, models.RoutineExerciseTemplate{ID: ex.TemplateID, ExerciseID: ex.ExerciseID})
		}
	}
	prev, err := s.prev.Index(ctx, state.RoutineID, templates)
	if err != nil {
		// Display-only data; resuming without it beats failing the resume.
		s.log.Warn("previous performance lookup failed", "error", err)
		prev = nil
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.state = state
	return state.Clone(), prev, nil
}

// Snapshot returns a deep copy of the current state, or nil when no workout
// is in progress.
func (s *Session) Snapshot() *models.WorkoutSessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// LogSet applies a mutation to the set identified by exercise id and set
// number, then schedules a background save. The caller is never blocked on
// the write.
func (s *Session) LogSet(exerciseID uuid.UUID, setNumber int, update SetUpdate) (*models.WorkoutSessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, err := s.exerciseLocked(exerciseID)
	if err != nil {
		return nil, err
	}
	var set *models.Set
	for i := range ex.Sets {
		if ex.Sets[i].SetNumber == setNumber {
			set = &ex.Sets[i]
			break
		}
	}
	if set == nil {
		return nil, ErrSetNotFound
	}

	if update.Reps != nil {
		set.Reps = *update.Reps
	}
	if update.Weight != nil {
		set.Weight = *update.Weight
	}
	if update.RestTimeSeconds != nil {
		set.RestTimeSeconds = *update.RestTimeSeconds
	}
	if update.Completed != nil {
		set.Completed = *update.Completed
	}
	if update.TrainingType != nil {
		set.TrainingType = *update.TrainingType
	}
	if update.Notes != nil {
		set.Notes = *update.Notes
	}

	s.scheduleSaveLocked()
	return s.state.Clone(), nil
}

// AddSet appends one set after the current highest-numbered set, inheriting
// rest time and training type from its predecessor.
func (s *Session) AddSet(exerciseID uuid.UUID) (*models.WorkoutSessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, err := s.exerciseLocked(exerciseID)
	if err != nil {
		return nil, err
	}

	next := models.Set{SetNumber: 1, RestTimeSeconds: s.defaultRest}
	if n := len(ex.Sets); n > 0 {
		last := ex.Sets[n-1]
		next.SetNumber = last.SetNumber + 1
		next.RestTimeSeconds = last.RestTimeSeconds
		next.TrainingType = last.TrainingType
	}
	ex.Sets = append(ex.Sets, next)

	s.scheduleSaveLocked()
	return s.state.Clone(), nil
}

// RemoveSet removes the highest-numbered set only; earlier sets are never
// renumbered, preserving historical set identity. Removing the only
// remaining set is rejected.
func (s *Session) RemoveSet(exerciseID uuid.UUID) (*models.WorkoutSessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, err := s.exerciseLocked(exerciseID)
	if err != nil {
		return nil, err
	}
	if len(ex.Sets) <= 1 {
		return nil, ErrLastSet
	}

	last := ex.Sets[len(ex.Sets)-1]
	ex.Sets = ex.Sets[:len(ex.Sets)-1]
	if last.ID != nil {
		s.state.PendingSetDeletes = append(s.state.PendingSetDeletes, *last.ID)
	}

	s.scheduleSaveLocked()
	return s.state.Clone(), nil
}

// UpdateExerciseNotes sets the notes of one exercise.
func (s *Session) UpdateExerciseNotes(exerciseID uuid.UUID, notes string) (*models.WorkoutSessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, err := s.exerciseLocked(exerciseID)
	if err != nil {
		return nil, err
	}
	ex.Notes = notes

	s.scheduleSaveLocked()
	return s.state.Clone(), nil
}

// UpdateWorkoutNotes sets the workout-level notes.
func (s *Session) UpdateWorkoutNotes(notes string) (*models.WorkoutSessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, ErrNoSession
	}
	s.state.Notes = notes

	s.scheduleSaveLocked()
	return s.state.Clone(), nil
}

// SetMode toggles between active and minimized. Minimizing is a pure UI
// visibility change: elapsed time is wall-clock derived, so nothing needs
// pausing, and persistence keeps flowing.
func (s *Session) SetMode(mode models.SessionMode) (*models.WorkoutSessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, ErrNoSession
	}
	if mode != models.ModeActive && mode != models.ModeMinimized {
		return nil, fmt.Errorf("invalid session mode %q", mode)
	}
	s.state.Mode = mode
	return s.state.Clone(), nil
}

// Reconcile re-syncs the in-memory state against the store, used after an
// unknown-duration suspension. Returns whether anything changed.
func (s *Session) Reconcile(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return false, ErrNoSession
	}
	return s.rec.Reconcile(ctx, s.state)
}

// Finish completes the workout: a final urgent save is awaited (not
// deferred to retries in the background), completed_at and the final
// duration are written, and the in-memory session is cleared. A failure is
// returned to the caller because it risks losing the session.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	// The lock is released while waiting: the gateway feeds assigned ids
	// back through absorb, which needs the lock.
	if err := s.gw.SaveAndWait(ctx, snap); err != nil {
		return fmt.Errorf("final save: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ErrNoSession
	}
	if s.state.WorkoutID == nil {
		return errors.New("workout row missing after final save")
	}

	now := s.clock.Now()
	err := s.store.CompleteWorkout(ctx, *s.state.WorkoutID, now, int(s.state.Elapsed(now).Seconds()))
	if err != nil {
		return fmt.Errorf("completing workout: %w", err)
	}

	s.log.Info("workout completed",
		"workout_id", *s.state.WorkoutID,
		"duration", s.state.Elapsed(now).Round(0).String(),
	)
	s.state = nil
	return nil
}

// Cancel discards the in-memory session. Whether the durable row is deleted
// or left behind as an incomplete workout is the caller's policy choice.
func (s *Session) Cancel(ctx context.Context, deleteDurable bool) error {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	id := s.state.WorkoutID
	s.state = nil
	s.mu.Unlock()

	if deleteDurable && id != nil {
		if err := s.store.DeleteWorkout(ctx, *id); err != nil {
			return fmt.Errorf("deleting cancelled workout: %w", err)
		}
	}
	return nil
}

func (s *Session) alreadyActiveLocked() error {
	id := uuid.Nil
	if s.state.WorkoutID != nil {
		id = *s.state.WorkoutID
	}
	return &models.AlreadyActiveError{WorkoutID: id}
}

func (s *Session) exerciseLocked(exerciseID uuid.UUID) (*models.WorkoutExerciseState, error) {
	if s.state == nil {
		return nil, ErrNoSession
	}
	for i := range s.state.Exercises {
		if s.state.Exercises[i].ExerciseID == exerciseID {
			return &s.state.Exercises[i], nil
		}
	}
	return nil, ErrExerciseNotFound
}

func (s *Session) scheduleSaveLocked() {
	s.gw.Save(s.state.Clone())
}

// absorb is the gateway's writeback: after a successful save it carries the
// store-assigned ids from the persisted snapshot into the live state, so
// subsequent saves update instead of inserting duplicates. Snapshots from a
// session that has since been replaced are discarded.
func (s *Session) absorb(persisted *models.WorkoutSessionState, deletedSets []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil || !sameWorkout(s.state, persisted) {
		return
	}

	if s.state.WorkoutID == nil {
		s.state.WorkoutID = persisted.WorkoutID
	}

	for i := range persisted.Exercises {
		pe := &persisted.Exercises[i]
		if pe.RowID == nil {
			continue
		}
		for j := range s.state.Exercises {
			le := &s.state.Exercises[j]
			if le.ExerciseID != pe.ExerciseID {
				continue
			}
			if le.RowID == nil {
				rowID := *pe.RowID
				le.RowID = &rowID
			}
			absorbSetIDs(le, pe)
			break
		}
	}

	if len(deletedSets) > 0 {
		done := make(map[uuid.UUID]bool, len(deletedSets))
		for _, id := range deletedSets {
			done[id] = true
		}
		remaining := s.state.PendingSetDeletes[:0]
		for _, id := range s.state.PendingSetDeletes {
			if !done[id] {
				remaining = append(remaining, id)
			}
		}
		s.state.PendingSetDeletes = remaining
	}
}

func absorbSetIDs(live, persisted *models.WorkoutExerciseState) {
	for i := range persisted.Sets {
		ps := &persisted.Sets[i]
		if ps.ID == nil {
			continue
		}
		for j := range live.Sets {
			ls := &live.Sets[j]
			if ls.SetNumber == ps.SetNumber && ls.ID == nil {
				id := *ps.ID
				ls.ID = &id
			}
		}
	}
}

// sameWorkout matches a persisted snapshot to the live session: by workout
// id when both know it, otherwise by routine and start time (the id may
// have been assigned during the very save being absorbed).
func sameWorkout(live, persisted *models.WorkoutSessionState) bool {
	if live.WorkoutID != nil && persisted.WorkoutID != nil {
		return *live.WorkoutID == *persisted.WorkoutID
	}
	return live.RoutineID == persisted.RoutineID && live.StartTime.Equal(persisted.StartTime)
}
