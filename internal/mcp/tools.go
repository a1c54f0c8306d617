package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repcoach/internal/progression"
)

// historyWindow is how many past sessions feed history and progression
// tools by default.
const historyWindow = 5

// defaultDateRange returns start/end defaulting to the last 30 days.
func defaultDateRange(startStr, endStr string) (time.Time, time.Time, error) {
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
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List a trainee's scheduled workout sessions with status (scheduled, in_progress, completed, cancelled, missed) and total volume."),
	mcp.WithString("trainee", mcp.Required(), mcp.Description("Trainee UUID")),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetSessionSets = mcp.NewTool("get_session_sets",
	mcp.WithDescription("Retrieve the performed sets of one session: reps, weight, RPE, set type and volume per set."),
	mcp.WithString("session", mcp.Required(), mcp.Description("Session UUID")),
)

var toolGetExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Per-session performance history of one exercise for a trainee, newest first. Includes planned targets and what was actually lifted."),
	mcp.WithString("trainee", mcp.Required(), mcp.Description("Trainee UUID")),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise UUID")),
	mcp.WithNumber("window", mcp.Description("Number of past sessions to include. Defaults to 5.")),
)

var toolGetProgression = mcp.NewTool("get_progression",
	mcp.WithDescription("Recommend the next load and reps for an exercise based on recent performance and RPE. Returns category, target weight/reps, confidence and rationale."),
	mcp.WithString("trainee", mcp.Required(), mcp.Description("Trainee UUID")),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise UUID")),
)

// --- Tool handlers ---

func requireUUID(req mcp.CallToolRequest, key string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(key)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(key + " parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(key + " must be a UUID")
	}
	return id, nil
}

func (h *handlers) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	traineeID, errRes := requireUUID(req, "trainee")
	if errRes != nil {
		return errRes, nil
	}

	start, end, err := defaultDateRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	sessions, err := h.ds.ListSessionsForTrainee(ctx, traineeID, start, end)
	if err != nil {
		h.log.Error("mcp list_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sessions)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSessionSets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errRes := requireUUID(req, "session")
	if errRes != nil {
		return errRes, nil
	}

	sets, err := h.ds.ListPerformedSets(ctx, sessionID)
	if err != nil {
		h.log.Error("mcp get_session_sets", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sets)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	traineeID, errRes := requireUUID(req, "trainee")
	if errRes != nil {
		return errRes, nil
	}
	exerciseID, errRes := requireUUID(req, "exercise")
	if errRes != nil {
		return errRes, nil
	}
	window := req.GetInt("window", historyWindow)

	history, err := h.ds.ExerciseHistory(ctx, traineeID, exerciseID, window)
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(history)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getProgression(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	traineeID, errRes := requireUUID(req, "trainee")
	if errRes != nil {
		return errRes, nil
	}
	exerciseID, errRes := requireUUID(req, "exercise")
	if errRes != nil {
		return errRes, nil
	}

	history, err := h.ds.ExerciseHistory(ctx, traineeID, exerciseID, historyWindow)
	if err != nil {
		h.log.Error("mcp get_progression", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	rec := progression.Recommend(history)
	rec.TraineeID = traineeID
	rec.ExerciseID = exerciseID

	result, err := mcp.NewToolResultJSON(rec)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
