package tasks

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"schedule-management-backend/internal/analysis"
	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/auth"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
)

var errTaskNotFound = httpx.NewError(http.StatusNotFound, "TASK_NOT_FOUND", "task not found")

type Handlers struct {
	DB       *db.DB
	Analyses *analysis.Service
	Logger   *zap.Logger
	// Location decides what "today" means on the dashboard.
	Location *time.Location
	Now      func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func taskID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.BadRequest("invalid task id")
	}
	return id, nil
}

func taskError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return errTaskNotFound
	}
	return err
}

// -------------------------------
// HANDLERS
// -------------------------------

// GET /api/tasks?status=
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && !validStatus(status) {
		httpx.Fail(w, httpx.NewError(http.StatusBadRequest, "INVALID_STATUS", "invalid status"))
		return
	}

	result, err := list(r.Context(), h.DB, uid, status)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, result)
}

// POST /api/tasks
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	var body TaskRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Fail(w, err)
		return
	}
	if err := body.normalize(); err != nil {
		httpx.Fail(w, httpx.NewError(http.StatusBadRequest, "INVALID_TASK", err.Error()))
		return
	}

	id, err := insert(r.Context(), h.DB, uid, body, h.now())
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	full, err := get(r.Context(), h.DB, uid, id)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	// analytics: manual_task_created
	analytics.LogRequest(r, h.DB, uid, analytics.EventManualTaskCreated, map[string]any{
		"task_id":  id,
		"priority": analytics.TierFromPriority(full.Priority),
		"category": full.Category,
		"text_len": len(full.Title) + len(full.Description),
	})

	httpx.JSON(w, http.StatusCreated, full)
}

// PUT /api/tasks/{id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	var body TaskRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Fail(w, err)
		return
	}
	if err := body.normalize(); err != nil {
		httpx.Fail(w, httpx.NewError(http.StatusBadRequest, "INVALID_TASK", err.Error()))
		return
	}

	if err := update(r.Context(), h.DB, uid, id, body, h.now()); err != nil {
		httpx.Fail(w, taskError(err))
		return
	}

	full, err := get(r.Context(), h.DB, uid, id)
	if err != nil {
		httpx.Fail(w, taskError(err))
		return
	}
	httpx.OK(w, full)
}

// PATCH /api/tasks/{id}/status
func (h *Handlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	var body StatusRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Fail(w, err)
		return
	}
	if !validStatus(body.Status) {
		httpx.Fail(w, httpx.NewError(http.StatusBadRequest, "INVALID_STATUS", "invalid status"))
		return
	}

	prev, err := get(r.Context(), h.DB, uid, id)
	if err != nil {
		httpx.Fail(w, taskError(err))
		return
	}

	if err := setStatus(r.Context(), h.DB, uid, id, body.Status, h.now()); err != nil {
		httpx.Fail(w, taskError(err))
		return
	}

	full, err := get(r.Context(), h.DB, uid, id)
	if err != nil {
		httpx.Fail(w, taskError(err))
		return
	}

	// analytics: manual_task_status_changed
	if prev.Status != full.Status {
		analytics.LogRequest(r, h.DB, uid, analytics.EventManualTaskStatus, map[string]any{
			"task_id":                id,
			"from":                   prev.Status,
			"to":                     full.Status,
			"priority":               analytics.TierFromPriority(full.Priority),
			"time_since_created_sec": int(h.now().Sub(full.CreatedAt).Seconds()),
		})
	}

	httpx.OK(w, full)
}

// DELETE /api/tasks/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}
	id, err := taskID(r)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	if err := remove(r.Context(), h.DB, uid, id); err != nil {
		httpx.Fail(w, taskError(err))
		return
	}
	httpx.Message(w, http.StatusOK, map[string]any{"id": id}, "task deleted")
}

// GET /api/dashboard/stats
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := h.now().In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	byStatus, err := countBy(r.Context(), h.DB, "manual_tasks", "status", uid)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	analyses, err := countBy(r.Context(), h.DB, "csv_analyses", "status", uid)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	today, err := queryTasks(r.Context(), h.DB, `user_id = ? AND start_at >= ? AND start_at < ?`,
		uid, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	stats := DashboardStats{
		Tasks:    map[string]int{},
		Today:    today,
		Analyses: map[string]int{},
	}
	for _, s := range []string{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled} {
		stats.Tasks[s] = byStatus[s]
		stats.TotalTasks += byStatus[s]
	}
	for _, s := range []string{analysis.StatusPending, analysis.StatusProcessing, analysis.StatusCompleted, analysis.StatusFailed} {
		stats.Analyses[s] = analyses[s]
	}
	httpx.OK(w, stats)
}
