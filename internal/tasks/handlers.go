package tasks

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"schedule-management-backend/internal/analysis"
	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/auth"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
	"schedule-management-backend/internal/schedule"
)

var errNotCompleted = httpx.NewError(http.StatusConflict, "ANALYSIS_NOT_COMPLETED", "analysis is not completed")

// Materialize stores every successful result of a completed analysis as a
// task. Entries that already produced a task for this user are skipped.
func (h *Handlers) Materialize(ctx context.Context, userID int, analysisID string) (*FromAnalysisResponse, error) {
	res, err := h.Analyses.Results(ctx, userID, analysisID)
	if err != nil {
		return nil, err
	}
	if res.Status != analysis.StatusCompleted {
		return nil, errNotCompleted
	}

	out := &FromAnalysisResponse{AnalysisID: analysisID, TaskIDs: []int64{}}
	now := h.now()

	err = h.DB.WithTx(ctx, func(tx *db.Tx) error {
		for _, er := range res.Results {
			if er.Status != analysis.ResultSuccess || er.ParsedResult == nil {
				continue
			}
			ev := er.ParsedResult

			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO manual_tasks (user_id, title, description, location, category, priority, status,
					start_at, end_at, source_entry_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (user_id, source_entry_id) DO NOTHING
				RETURNING id
			`, userID, ev.Title, describe(ev), ev.Location, string(ev.Category), ev.Priority, StatusPending,
				ev.StartDatetime.UTC(), ev.EndDatetime.UTC(), er.EntryID, now, now).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				out.TasksSkipped++
				continue
			}
			if err != nil {
				return err
			}
			out.TaskIDs = append(out.TaskIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.TasksCreated = len(out.TaskIDs)
	return out, nil
}

func describe(ev *schedule.Event) string {
	var parts []string
	if ev.Notes != "" {
		parts = append(parts, ev.Notes)
	}
	if len(ev.Requirements) > 0 {
		parts = append(parts, "Chuẩn bị: "+strings.Join(ev.Requirements, ", "))
	}
	if len(ev.Participants) > 0 {
		parts = append(parts, "Lớp: "+strings.Join(ev.Participants, ", "))
	}
	return strings.Join(parts, "\n")
}

// POST /api/tasks/from-analysis
func (h *Handlers) FromAnalysis(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	var body FromAnalysisRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Fail(w, err)
		return
	}
	body.AnalysisID = strings.TrimSpace(body.AnalysisID)
	if body.AnalysisID == "" {
		httpx.Fail(w, httpx.BadRequest("analysis_id required"))
		return
	}

	start := time.Now()
	out, err := h.Materialize(r.Context(), uid, body.AnalysisID)
	if errors.Is(err, analysis.ErrAnalysisNotFound) {
		httpx.Fail(w, httpx.NewError(http.StatusNotFound, "ANALYSIS_NOT_FOUND", "analysis not found"))
		return
	}
	if errors.Is(err, errNotCompleted) {
		httpx.Fail(w, err)
		return
	}
	if err != nil {
		h.Logger.Error("materialize analysis failed",
			zap.Int("user_id", uid), zap.String("analysis_id", body.AnalysisID), zap.Error(err))
		httpx.Fail(w, err)
		return
	}

	h.Logger.Info("tasks materialized",
		zap.String("analysis_id", body.AnalysisID),
		zap.Int("created", out.TasksCreated),
		zap.Int("skipped", out.TasksSkipped),
		zap.Duration("took", time.Since(start)),
	)

	// analytics: tasks_materialized
	analytics.LogRequest(r, h.DB, uid, analytics.EventTasksMaterialized, map[string]any{
		"analysis_id": body.AnalysisID,
		"created":     out.TasksCreated,
		"skipped":     out.TasksSkipped,
	})

	httpx.OK(w, out)
}
