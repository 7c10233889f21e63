package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
	"github.com/google/uuid"
)

// RetryPolicy controls retry behaviour around storage writes. An explicit
// policy object keeps the backoff tunable and lets tests inject zero delays.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay added as random jitter
}

// Backoff returns the delay before the given retry. Attempts count from 1;
// the base delay doubles each attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

// Default policies: background saves give up sooner because the next user
// action schedules another one anyway; urgent saves (finish, app exit) try
// harder.
var (
	BackgroundRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second, Jitter: 0.2}
	UrgentRetry     = RetryPolicy{MaxAttempts: 5, BaseDelay: 250 * time.Millisecond, MaxDelay: 4 * time.Second, Jitter: 0.2}
)

type saveRequest struct {
	snap   *models.WorkoutSessionState
	urgent bool
	done   chan error // nil for fire-and-forget saves
}

// Gateway is the only writer of workout progress. It upserts session
// snapshots into the store with bounded retry, and serializes saves so at
// most one is in flight: requests arriving while a save runs are coalesced
// into a single trailing save carrying the newest snapshot.
type Gateway struct {
	store      *storage.DB
	clock      Clock
	log        *slog.Logger
	background RetryPolicy
	urgent     RetryPolicy

	// onPersisted is invoked after every successful save, before any
	// waiter is released, with the persisted snapshot (store-assigned ids
	// filled in) and the set ids that were durably deleted.
	onPersisted func(persisted *models.WorkoutSessionState, deletedSets []uuid.UUID)

	reqs chan saveRequest
	stop chan struct{}
}

// NewGateway creates a gateway and starts its save loop.
func NewGateway(store *storage.DB, clock Clock, log *slog.Logger, background, urgent RetryPolicy) *Gateway {
	g := &Gateway{
		store:      store,
		clock:      clock,
		log:        log,
		background: background,
		urgent:     urgent,
		reqs:       make(chan saveRequest, 64),
		stop:       make(chan struct{}),
	}
	go g.run()
	return g
}

// OnPersisted registers the callback that feeds store-assigned ids back
// into the in-memory session. Must be set before the first save.
func (g *Gateway) OnPersisted(fn func(persisted *models.WorkoutSessionState, deletedSets []uuid.UUID)) {
	g.onPersisted = fn
}

// Close stops the save loop. Queued fire-and-forget saves are dropped;
// callers should issue an urgent save before closing.
func (g *Gateway) Close() {
	close(g.stop)
}

// Save schedules a background save of the snapshot. It never blocks the
// caller: if the queue is full the request is dropped, since a newer
// snapshot always supersedes an older one.
func (g *Gateway) Save(snap *models.WorkoutSessionState) {
	select {
	case g.reqs <- saveRequest{snap: snap}:
	default:
		g.log.Warn("save queue full, dropping snapshot", "workout_id", snap.WorkoutID)
	}
}

// SaveAndWait performs an urgent save and blocks until it finishes or the
// context is done. Used for the terminal finish save, which must not be
// deferred.
func (g *Gateway) SaveAndWait(ctx context.Context, snap *models.WorkoutSessionState) error {
	done := make(chan error, 1)
	select {
	case g.reqs <- saveRequest{snap: snap, urgent: true, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) run() {
	for {
		var first saveRequest
		select {
		case <-g.stop:
			return
		case first = <-g.reqs:
		}

		batch := []saveRequest{first}
	collect:
		for {
			select {
			case r := <-g.reqs:
				batch = append(batch, r)
			default:
				break collect
			}
		}
		g.process(batch)
	}
}

// process executes one coalesced save: the newest snapshot wins, urgency is
// inherited from any request in the batch, and every waiter sees the result.
func (g *Gateway) process(batch []saveRequest) {
	snap := batch[len(batch)-1].snap
	policy := g.background
	for _, r := range batch {
		if r.urgent {
			policy = g.urgent
			break
		}
	}

	deleted, err := g.saveWithRetry(context.Background(), snap, policy)
	if err == nil && g.onPersisted != nil {
		g.onPersisted(snap, deleted)
	}

	notified := false
	for _, r := range batch {
		if r.done != nil {
			r.done <- err
			notified = true
		}
	}
	if err != nil && !notified {
		// Soft failure: the in-memory state stays authoritative and the
		// next save attempt may still succeed.
		g.log.Warn("background save exhausted retries", "workout_id", snap.WorkoutID, "error", err)
	}
}

func (g *Gateway) saveWithRetry(ctx context.Context, snap *models.WorkoutSessionState, policy RetryPolicy) ([]uuid.UUID, error) {
	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		deleted, err := g.persist(ctx, snap)
		if err == nil {
			return deleted, nil
		}
		last = err
		g.log.Warn("save attempt failed", "attempt", attempt, "error", err)
		if attempt < policy.MaxAttempts {
			if err := sleepCtx(ctx, policy.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, &models.PersistenceExhaustedError{Attempts: policy.MaxAttempts, Last: last}
}

// persist writes one snapshot. Workout-level failures abort the attempt and
// trigger a retry; exercise- and set-level failures are logged and skipped
// so one bad row does not abort saving the rest of the workout (the skipped
// rows stay id-less in memory and ride along on the next save).
func (g *Gateway) persist(ctx context.Context, snap *models.WorkoutSessionState) ([]uuid.UUID, error) {
	now := g.clock.Now()

	if snap.WorkoutID == nil {
		id := uuid.New()
		snap.WorkoutID = &id
	}
	// Upsert keyed by id: the row is created here when session start could
	// not, and refreshed otherwise. Duration is recomputed from the start
	// time on every save so it cannot drift.
	err := g.store.UpsertWorkout(ctx, storage.WorkoutRow{
		ID:          *snap.WorkoutID,
		RoutineID:   snap.RoutineID,
		Name:        snap.RoutineName,
		Date:        snap.StartTime,
		DurationSec: int(snap.Elapsed(now).Seconds()),
		Notes:       snap.Notes,
	})
	if err != nil {
		return nil, err
	}

	for i := range snap.Exercises {
		ex := &snap.Exercises[i]
		if !ex.Touched() {
			// Never write placeholder rows for exercises the user never
			// touched.
			continue
		}

		rowID := uuid.Nil
		if ex.RowID != nil {
			rowID = *ex.RowID
		}
		id, err := g.store.UpsertWorkoutExercise(ctx, storage.WorkoutExerciseRow{
			ID:            rowID,
			WorkoutID:     *snap.WorkoutID,
			ExerciseID:    ex.ExerciseID,
			SetsCompleted: ex.CompletedSetCount(),
			Notes:         ex.Notes,
		})
		if err != nil {
			g.log.Error("skipping exercise row", "exercise_id", ex.ExerciseID, "error", err)
			continue
		}
		ex.RowID = &id

		for j := range ex.Sets {
			set := &ex.Sets[j]
			row := storage.SetRow{
				WorkoutExerciseID: id,
				SetNumber:         set.SetNumber,
				Reps:              set.Reps,
				Weight:            set.Weight,
				RestTimeSeconds:   set.RestTimeSeconds,
				Completed:         set.Completed,
				TrainingType:      set.TrainingType,
				Notes:             set.Notes,
			}
			if set.ID == nil {
				setID, err := g.store.UpsertSet(ctx, row)
				if err != nil {
					g.log.Error("skipping set upsert", "set_number", set.SetNumber, "error", err)
					continue
				}
				set.ID = &setID
			} else {
				row.ID = *set.ID
				if err := g.store.UpdateSet(ctx, row); err != nil {
					g.log.Error("skipping set update", "set_id", *set.ID, "error", err)
				}
			}
		}
	}

	var deleted []uuid.UUID
	for _, id := range snap.PendingSetDeletes {
		if err := g.store.DeleteSet(ctx, id); err != nil {
			g.log.Error("skipping set delete", "set_id", id, "error", err)
			continue
		}
		deleted = append(deleted, id)
	}

	return deleted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
