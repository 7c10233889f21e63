package mcp

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/stats"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 30 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -30)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// --- Tool definitions ---

var toolGetWorkoutHistory = mcp.NewTool("get_workout_history",
	mcp.WithDescription("Query logged workouts. Returns workout summaries including routine, date, duration, completion status, and notes."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetPreviousPerformance = mcp.NewTool("get_previous_performance",
	mcp.WithDescription("Per-exercise set values (reps and weight) from the most recent completed workout of a routine. These are the targets shown during a workout."),
	mcp.WithString("routine_id", mcp.Required(), mcp.Description("Routine UUID")),
)

var toolGetStreaks = mcp.NewTool("get_streaks",
	mcp.WithDescription("Current and longest consecutive-day completion streaks plus a 30-day activity calendar."),
)

var toolListRoutines = mcp.NewTool("list_routines",
	mcp.WithDescription("List all routines with their exercise templates and target set counts."),
)

// --- Tool handlers ---

func (h *handlers) getWorkoutHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	workouts, err := h.db.QueryWorkouts(ctx, start, end)
	if err != nil {
		h.log.Error("mcp get_workout_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(workouts)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getPreviousPerformance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("routine_id")
	if err != nil {
		return mcp.NewToolResultError("routine_id parameter is required"), nil
	}
	routineID, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("routine_id must be a UUID"), nil
	}

	perf, err := h.db.PreviousPerformance(ctx, routineID)
	if err != nil {
		h.log.Error("mcp get_previous_performance", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(perf)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getStreaks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const windowDays = 30
	today := time.Now()

	completions, err := h.db.CompletedWorkoutTimes(ctx, today.AddDate(0, 0, -windowDays))
	if err != nil {
		h.log.Error("mcp get_streaks", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(stats.Compute(completions, today, windowDays))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listRoutines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routines, err := h.db.ListRoutines(ctx)
	if err != nil {
		h.log.Error("mcp list_routines", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	type routineWithTemplates struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		Exercises any       `json:"exercises"`
	}

	out := make([]routineWithTemplates, 0, len(routines))
	for _, r := range routines {
		templates, err := h.db.ListRoutineTemplates(ctx, r.ID)
		if err != nil {
			h.log.Error("mcp list_routines templates", "routine_id", r.ID, "error", err)
			continue
		}
		out = append(out, routineWithTemplates{ID: r.ID, Name: r.Name, Exercises: templates})
	}

	result, err := mcp.NewToolResultJSON(out)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
