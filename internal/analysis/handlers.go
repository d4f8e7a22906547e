package analysis

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/auth"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
)

// Handlers exposes the service under /api/csv-task-analysis.
type Handlers struct {
	Service *Service
	DB      *db.DB
	Logger  *zap.Logger
}

// Analyze
// POST /api/csv-task-analysis/analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	var req SubmitRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, err)
		return
	}
	if req.UserID, ok = ownUser(req.UserID, uid); !ok {
		httpx.Fail(w, httpx.ErrForbidden)
		return
	}

	res, err := h.Service.Submit(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.httpError(err))
		return
	}

	analytics.LogRequest(r, h.DB, uid, analytics.EventAnalysisSubmitted, map[string]any{
		"analysis_id": res.AnalysisID,
		"locked":      res.EntriesLocked,
		"skipped":     res.EntriesSkipped,
	})
	httpx.Message(w, http.StatusAccepted, res, "analysis started")
}

// Results
// GET /api/csv-task-analysis/results/{analysis_id}
func (h *Handlers) Results(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	res, err := h.Service.Results(r.Context(), uid, mux.Vars(r)["analysis_id"])
	if err != nil {
		httpx.Fail(w, h.httpError(err))
		return
	}
	httpx.OK(w, res)
}

// Status
// GET /api/csv-task-analysis/status/{user_id}
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	pathUID, err := strconv.Atoi(mux.Vars(r)["user_id"])
	if err != nil || pathUID <= 0 {
		httpx.Fail(w, httpx.BadRequest("user_id must be a positive integer"))
		return
	}
	if pathUID != uid {
		httpx.Fail(w, httpx.ErrForbidden)
		return
	}

	res, err := h.Service.Status(r.Context(), uid)
	if err != nil {
		httpx.Fail(w, h.httpError(err))
		return
	}
	httpx.OK(w, res)
}

// Unlock
// POST /api/csv-task-analysis/unlock
func (h *Handlers) Unlock(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	var req UnlockRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, err)
		return
	}
	if req.UserID, ok = ownUser(req.UserID, uid); !ok {
		httpx.Fail(w, httpx.ErrForbidden)
		return
	}

	res, err := h.Service.Unlock(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.httpError(err))
		return
	}

	analytics.LogRequest(r, h.DB, uid, analytics.EventEntriesUnlocked, map[string]any{
		"unlocked": res.EntriesUnlocked,
	})
	httpx.OK(w, res)
}

// BatchAnalyze
// POST /api/csv-task-analysis/batch-analyze
func (h *Handlers) BatchAnalyze(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	var req BatchRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, err)
		return
	}
	if req.UserID, ok = ownUser(req.UserID, uid); !ok {
		httpx.Fail(w, httpx.ErrForbidden)
		return
	}

	res, err := h.Service.Batch(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.httpError(err))
		return
	}

	analytics.LogRequest(r, h.DB, uid, analytics.EventAnalysisSubmitted, map[string]any{
		"analysis_id": res.AnalysisID,
		"imports":     len(req.ImportIDs),
		"locked":      res.EntriesLocked,
		"skipped":     res.EntriesSkipped,
	})
	httpx.Message(w, http.StatusAccepted, res, "batch analysis started")
}

// ownUser fills a missing body user_id from the token and rejects a foreign one.
func ownUser(bodyUID, tokenUID int) (int, bool) {
	if bodyUID == 0 {
		return tokenUID, true
	}
	return bodyUID, bodyUID == tokenUID
}

func (h *Handlers) httpError(err error) error {
	var code string
	status := http.StatusBadRequest

	switch {
	case errors.Is(err, ErrEmptyEntrySet):
		code = "EMPTY_ENTRY_SET"
	case errors.Is(err, ErrEmptyImportSet):
		code = "EMPTY_IMPORT_SET"
	case errors.Is(err, ErrInvalidType):
		code = "INVALID_ANALYSIS_TYPE"
	case errors.Is(err, ErrInvalidOptions):
		code = "INVALID_OPTIONS"
	case errors.Is(err, ErrUserNotFound):
		status, code = http.StatusNotFound, "USER_NOT_FOUND"
	case errors.Is(err, ErrEntryNotFound):
		status, code = http.StatusNotFound, "ENTRY_NOT_FOUND"
	case errors.Is(err, ErrImportNotFound):
		status, code = http.StatusNotFound, "IMPORT_NOT_FOUND"
	case errors.Is(err, ErrAnalysisNotFound):
		status, code = http.StatusNotFound, "ANALYSIS_NOT_FOUND"
	case errors.Is(err, ErrAllLocked):
		status, code = http.StatusConflict, "ALL_ENTRIES_LOCKED"
	case errors.Is(err, ErrEntriesLocked):
		status, code = http.StatusConflict, "ENTRIES_LOCKED"
	default:
		h.Logger.Error("csv task analysis", zap.Error(err))
		return err
	}
	return httpx.NewError(status, code, err.Error())
}
