package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/claude/liftlog/internal/engine"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/timer"
	"github.com/go-chi/chi/v5"
)

// Server exposes the session engine to the UI. It accepts no raw UI events:
// every route maps onto one engine operation and returns the resulting
// session snapshot for rendering.
type Server struct {
	db      *storage.DB
	session *engine.Session
	prev    *engine.PreviousPerformance
	log     *slog.Logger
	router  chi.Router
	apiKey  string

	notifier    timer.Notifier
	defaultRest int

	timerMu   sync.Mutex
	restTimer *timer.Timer
	timerStop func()
}

// New creates a new Server with all routes configured. An empty apiKey
// disables authentication.
func New(db *storage.DB, session *engine.Session, prev *engine.PreviousPerformance, notifier timer.Notifier, defaultRest int, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:          db,
		session:     session,
		prev:        prev,
		notifier:    notifier,
		defaultRest: defaultRest,
		apiKey:      apiKey,
		log:         log,
		router:      chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Mount attaches an extra handler subtree (e.g. the MCP transport).
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(APIKeyAuth(s.apiKey))
		}
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/start", s.handleStartSession)
			r.Post("/resume", s.handleResumeSession)
			r.Post("/reconcile", s.handleReconcile)
			r.Post("/finish", s.handleFinish)
			r.Post("/cancel", s.handleCancel)
			r.Post("/mode", s.handleSetMode)
			r.Post("/notes", s.handleWorkoutNotes)
			r.Post("/exercise-notes", s.handleExerciseNotes)
			r.Post("/sets/log", s.handleLogSet)
			r.Post("/sets/add", s.handleAddSet)
			r.Post("/sets/remove", s.handleRemoveSet)
			r.Get("/active-workout", s.handleActiveWorkout)
		})

		r.Route("/timer", func(r chi.Router) {
			r.Get("/", s.handleTimerState)
			r.Post("/start", s.handleTimerStart)
			r.Post("/add-time", s.handleTimerAddTime)
			r.Post("/skip", s.handleTimerSkip)
		})

		r.Get("/stats/streaks", s.handleStreaks)
		r.Get("/workouts", s.handleQueryWorkouts)

		r.Route("/routines", func(r chi.Router) {
			r.Get("/", s.handleListRoutines)
			r.Post("/", s.handleCreateRoutine)
			r.Delete("/{id}", s.handleDeleteRoutine)
			r.Post("/{id}/exercises", s.handleAddRoutineExercise)
			r.Get("/{id}/previous-performance", s.handlePreviousPerformance)
		})

		r.Route("/exercises", func(r chi.Router) {
			r.Get("/", s.handleListExercises)
			r.Post("/", s.handleCreateExercise)
			r.Delete("/{id}", s.handleDeleteExercise)
		})
	})
}
