package analytics

import (
	"net/http"
	"strings"

	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
)

// client events accepted from the app
var clientEvents = map[string]bool{
	"app_opened":       true,
	"screen_viewed":    true,
	"import_started":   true,
	"results_viewed":   true,
	"welcome_finished": true,
}

// ClientEventHandler records an app-side event. POST /api/analytics/events
func ClientEventHandler(dbx *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			httpx.Fail(w, httpx.ErrUnauthorized)
			return
		}

		var body struct {
			EventName  string         `json:"event_name"`
			Properties map[string]any `json:"properties"`
		}
		if err := httpx.Decode(r, &body); err != nil {
			httpx.Fail(w, err)
			return
		}

		name := strings.TrimSpace(body.EventName)
		if !clientEvents[name] {
			httpx.Fail(w, httpx.NewError(http.StatusBadRequest, "UNKNOWN_EVENT", "unknown event name"))
			return
		}
		if body.Properties == nil {
			body.Properties = map[string]any{}
		}

		LogRequest(r, dbx, uid, name, body.Properties)

		httpx.OK(w, map[string]any{"ok": true})
	}
}
