package imports

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/auth"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
	"schedule-management-backend/internal/schedule"
	"schedule-management-backend/internal/templates"
)

var (
	errImportNotFound = httpx.NewError(http.StatusNotFound, "IMPORT_NOT_FOUND", "import not found")
	errImportLocked   = httpx.NewError(http.StatusConflict, "IMPORT_LOCKED", "import has entries locked by an analysis")
	errEmptyImport    = httpx.NewError(http.StatusBadRequest, "EMPTY_IMPORT", "file has no data rows")
	errTooLarge       = httpx.NewError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "upload exceeds size limit")
)

type Handlers struct {
	DB             *db.DB
	Logger         *zap.Logger
	MaxUploadBytes int64
}

type jsonImport struct {
	FileName   string         `json:"file_name"`
	TemplateID int64          `json:"template_id"`
	Rows       []schedule.Row `json:"rows"`
}

// POST /api/csv-imports
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}
	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	var (
		fileName   string
		templateID int64
		rows       []schedule.Row
		lines      []int
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		mem := h.MaxUploadBytes
		if mem <= 0 {
			mem = 32 << 20
		}
		if err := r.ParseMultipartForm(mem); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpx.Fail(w, errTooLarge)
				return
			}
			httpx.Fail(w, httpx.BadRequest("invalid multipart form"))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpx.Fail(w, httpx.BadRequest("file is required"))
			return
		}
		defer file.Close()
		fileName = filepath.Base(header.Filename)

		if v := strings.TrimSpace(r.FormValue("template_id")); v != "" {
			templateID, err = strconv.ParseInt(v, 10, 64)
			if err != nil || templateID < 0 {
				httpx.Fail(w, httpx.BadRequest("invalid template id"))
				return
			}
		}

		tpl, err := h.template(r, uid, templateID)
		if err != nil {
			httpx.Fail(w, err)
			return
		}

		rows, lines, err = ReadCSV(file, tpl)
		switch {
		case errors.Is(err, ErrNoRows):
			httpx.Fail(w, errEmptyImport)
			return
		case err != nil:
			httpx.Fail(w, httpx.NewError(http.StatusBadRequest, "INVALID_CSV", err.Error()))
			return
		}
	} else {
		var body jsonImport
		if err := httpx.Decode(r, &body); err != nil {
			httpx.Fail(w, err)
			return
		}
		if body.TemplateID < 0 {
			httpx.Fail(w, httpx.BadRequest("invalid template id"))
			return
		}
		if _, err := h.template(r, uid, body.TemplateID); err != nil {
			httpx.Fail(w, err)
			return
		}
		fileName, templateID = strings.TrimSpace(body.FileName), body.TemplateID
		for i, row := range body.Rows {
			if row.IsBlank() {
				continue
			}
			rows = append(rows, normalizeRow(row))
			lines = append(lines, i+1)
		}
		if len(rows) == 0 {
			httpx.Fail(w, errEmptyImport)
			return
		}
	}

	res, err := create(r.Context(), h.DB, uid, fileName, templateID, rows, lines)
	if err != nil {
		h.Logger.Error("create import failed", zap.Int("user_id", uid), zap.Error(err))
		httpx.Fail(w, err)
		return
	}

	h.Logger.Info("import created",
		zap.Int("user_id", uid),
		zap.String("import_id", res.ImportID),
		zap.Int("entries", res.EntriesCreated),
	)

	// analytics: csv_imported (counts only, never row contents)
	analytics.LogRequest(r, h.DB, uid, analytics.EventCSVImported, map[string]any{
		"import_id":   res.ImportID,
		"rows":        res.EntriesCreated,
		"template_id": templateID,
	})

	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handlers) template(r *http.Request, uid int, id int64) (templates.Template, error) {
	tpl, err := templates.Resolve(r.Context(), h.DB, uid, id)
	if errors.Is(err, templates.ErrNotFound) {
		return tpl, httpx.NewError(http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")
	}
	return tpl, err
}

func normalizeRow(row schedule.Row) schedule.Row {
	row.Lop = schedule.Normalize(row.Lop)
	row.Ngay = schedule.Normalize(row.Ngay)
	row.Phong = schedule.Normalize(row.Phong)
	row.MonHoc = schedule.Normalize(row.MonHoc)
	row.GioBatDau = schedule.Normalize(row.GioBatDau)
	row.GioKetThuc = schedule.Normalize(row.GioKetThuc)
	return row
}

// GET /api/csv-imports
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	out, err := list(r.Context(), h.DB, uid)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, out)
}

// GET /api/csv-imports/{id}/entries
func (h *Handlers) Entries(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	out, err := entries(r.Context(), h.DB, uid, mux.Vars(r)["id"])
	if errors.Is(err, ErrNotFound) {
		httpx.Fail(w, errImportNotFound)
		return
	}
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, out)
}

// DELETE /api/csv-imports/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	id := mux.Vars(r)["id"]
	switch err := remove(r.Context(), h.DB, uid, id); {
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, errImportNotFound)
	case errors.Is(err, ErrLocked):
		httpx.Fail(w, errImportLocked)
	case err != nil:
		httpx.Fail(w, err)
	default:
		httpx.Message(w, http.StatusOK, map[string]any{"id": id}, "import deleted")
	}
}
