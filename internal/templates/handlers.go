package templates

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/auth"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
)

var errTemplateNotFound = httpx.NewError(http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")

// GET /api/templates
func ListTemplatesHandler(dbx *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Fail(w, httpx.ErrUnauthorized)
			return
		}

		out, err := list(r.Context(), dbx, uid)
		if err != nil {
			httpx.Fail(w, err)
			return
		}
		httpx.OK(w, out)
	}
}

// GET /api/templates/{id}
func GetTemplateHandler(dbx *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Fail(w, httpx.ErrUnauthorized)
			return
		}

		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id < 0 {
			httpx.Fail(w, httpx.BadRequest("invalid template id"))
			return
		}

		t, err := Resolve(r.Context(), dbx, uid, id)
		if errors.Is(err, ErrNotFound) {
			httpx.Fail(w, errTemplateNotFound)
			return
		}
		if err != nil {
			httpx.Fail(w, err)
			return
		}
		httpx.OK(w, t)
	}
}

// POST /api/templates
func CreateTemplateHandler(dbx *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Fail(w, httpx.ErrUnauthorized)
			return
		}

		var body struct {
			Name       string   `json:"name"`
			Profession string   `json:"profession"`
			Columns    []Column `json:"columns"`
		}
		if err := httpx.Decode(r, &body); err != nil {
			httpx.Fail(w, err)
			return
		}

		t := Template{
			UserID:     &uid,
			Name:       strings.TrimSpace(body.Name),
			Profession: strings.TrimSpace(body.Profession),
			Columns:    body.Columns,
			CreatedAt:  time.Now().UTC(),
		}
		if err := t.Validate(); err != nil {
			httpx.Fail(w, httpx.NewError(http.StatusBadRequest, "INVALID_TEMPLATE", err.Error()))
			return
		}

		if err := insert(r.Context(), dbx, &t); err != nil {
			httpx.Fail(w, err)
			return
		}

		// analytics: template_created (names only, never column contents)
		analytics.LogRequest(r, dbx, uid, analytics.EventTemplateCreated, map[string]any{
			"template_id": t.ID,
			"columns":     len(t.Columns),
			"profession":  t.Profession,
		})

		httpx.JSON(w, http.StatusCreated, t)
	}
}

// DELETE /api/templates/{id}
func DeleteTemplateHandler(dbx *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Fail(w, httpx.ErrUnauthorized)
			return
		}

		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			httpx.Fail(w, httpx.BadRequest("invalid template id"))
			return
		}

		err = remove(r.Context(), dbx, uid, id)
		if errors.Is(err, ErrNotFound) {
			httpx.Fail(w, errTemplateNotFound)
			return
		}
		if err != nil {
			httpx.Fail(w, err)
			return
		}
		httpx.Message(w, http.StatusOK, map[string]any{"id": id}, "template deleted")
	}
}
