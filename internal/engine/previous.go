package engine

import (
	"context"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
	"github.com/google/uuid"
)

// PreviousPerformance looks up, per exercise template, the set values from
// the most recent prior completed workout of the same routine. Used purely
// as a "match or exceed" display target; a missing record is not an error.
type PreviousPerformance struct {
	store *storage.DB
}

// NewPreviousPerformance creates the lookup.
func NewPreviousPerformance(store *storage.DB) *PreviousPerformance {
	return &PreviousPerformance{store: store}
}

// Index maps each template id to the ordered prior set values for its
// exercise. Templates with no completed history are absent from the map.
func (p *PreviousPerformance) Index(ctx context.Context, routineID uuid.UUID, templates []models.RoutineExerciseTemplate) (map[uuid.UUID][]models.SetPerformance, error) {
	byExercise, err := p.store.PreviousPerformance(ctx, routineID)
	if err != nil {
		return nil, err
	}

	result := make(map[uuid.UUID][]models.SetPerformance, len(templates))
	for _, tpl := range templates {
		if perf, ok := byExercise[tpl.ExerciseID]; ok {
			result[tpl.ID] = perf
		}
	}
	return result, nil
}
