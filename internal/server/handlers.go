package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/claude/liftlog/internal/engine"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/stats"
	"github.com/claude/liftlog/internal/timer"
	"github.com/google/uuid"
)

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no workout in progress"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoutineID uuid.UUID `json:"routine_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, err := s.session.Start(r.Context(), req.RoutineID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkoutID uuid.UUID `json:"workout_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, prev, err := s.session.Resume(r.Context(), req.WorkoutID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":              snap,
		"previous_performance": prev,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	changed, err := s.session.Reconcile(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"session": s.session.Snapshot(),
	})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	// The finish save is awaited: failure is surfaced to the user because
	// navigating away now would risk losing the session.
	if err := s.session.Finish(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delete bool `json:"delete"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	if err := s.session.Cancel(r.Context(), req.Delete); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode models.SessionMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, err := s.session.SetMode(req.Mode)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleWorkoutNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, err := s.session.UpdateWorkoutNotes(req.Notes)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleExerciseNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExerciseID uuid.UUID `json:"exercise_id"`
		Notes      string    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, err := s.session.UpdateExerciseNotes(req.ExerciseID, req.Notes)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLogSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExerciseID uuid.UUID        `json:"exercise_id"`
		SetNumber  int              `json:"set_number"`
		Update     engine.SetUpdate `json:"update"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, err := s.session.LogSet(req.ExerciseID, req.SetNumber, req.Update)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExerciseID uuid.UUID `json:"exercise_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, err := s.session.AddSet(req.ExerciseID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRemoveSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExerciseID uuid.UUID `json:"exercise_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	snap, err := s.session.RemoveSet(req.ExerciseID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleActiveWorkout(w http.ResponseWriter, r *http.Request) {
	workout, err := s.db.ActiveWorkout(r.Context())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no incomplete workout"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

// --- Rest timer ---

func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DurationSeconds int `json:"duration_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = s.defaultRest
	}

	s.timerMu.Lock()
	if s.timerStop != nil {
		s.timerStop()
	}
	t := timer.New("rest", s.log, timer.WithNotifier(s.notifier))
	t.Start(time.Duration(req.DurationSeconds) * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	s.restTimer = t
	s.timerStop = cancel
	s.timerMu.Unlock()

	go t.Run(ctx, 250*time.Millisecond)

	writeJSON(w, http.StatusCreated, timerState(t))
}

func (s *Server) handleTimerAddTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	t := s.currentTimer()
	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no rest timer running"})
		return
	}
	t.AddTime(time.Duration(req.Seconds) * time.Second)
	writeJSON(w, http.StatusOK, timerState(t))
}

func (s *Server) handleTimerSkip(w http.ResponseWriter, r *http.Request) {
	t := s.currentTimer()
	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no rest timer running"})
		return
	}
	t.Skip()
	writeJSON(w, http.StatusOK, timerState(t))
}

func (s *Server) handleTimerState(w http.ResponseWriter, r *http.Request) {
	t := s.currentTimer()
	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no rest timer running"})
		return
	}
	writeJSON(w, http.StatusOK, timerState(t))
}

func (s *Server) currentTimer() *timer.Timer {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.restTimer
}

func timerState(t *timer.Timer) map[string]any {
	return map[string]any{
		"remaining_seconds": t.Remaining().Round(time.Second) / time.Second,
		"progress":          t.Progress(),
		"running":           t.Running(),
	}
}

// --- Statistics ---

func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	const windowDays = 30
	today := time.Now()
	since := today.AddDate(0, 0, -windowDays)

	completions, err := s.db.CompletedWorkoutTimes(r.Context(), since)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats.Compute(completions, today, windowDays))
}

func (s *Server) handleQueryWorkouts(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	workouts, err := s.db.QueryWorkouts(r.Context(), start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, workouts)
}

// --- Helpers ---

// writeEngineError maps the engine error taxonomy onto HTTP statuses. The
// AlreadyActive payload carries the existing workout id so the client can
// redirect to it.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var already *models.AlreadyActiveError
	if errors.As(err, &already) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      already.Error(),
			"workout_id": already.WorkoutID,
		})
		return
	}
	var noEx *models.NoExercisesError
	if errors.As(err, &noEx) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": noEx.Error()})
		return
	}
	var empty *models.EmptyRoutineError
	if errors.As(err, &empty) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": empty.Error()})
		return
	}
	var notFound *models.WorkoutNotFoundError
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
		return
	}
	switch {
	case errors.Is(err, engine.ErrNoSession):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrExerciseNotFound), errors.Is(err, engine.ErrSetNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrLastSet):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, sql.ErrNoRows):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.log.Error("engine error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := parseFlexTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := parseFlexTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
