package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"schedule-management-backend/internal/db"
)

type CtxKey string

const (
	ctxUserIDKey CtxKey = "analytics_user_id"
)

// Event names written by the server.
const (
	EventCSVImported       = "csv_imported"
	EventAnalysisSubmitted = "analysis_submitted"
	EventAnalysisCompleted = "analysis_completed"
	EventEntriesUnlocked   = "entries_unlocked"
	EventTasksMaterialized = "tasks_materialized"
	EventTemplateCreated   = "template_created"
	EventManualTaskCreated = "manual_task_created"
	EventManualTaskStatus  = "manual_task_status_changed"
)

// Envelope is what we store with every event.
type Envelope struct {
	UserID       int
	SessionID    string
	Platform     string
	AppVersion   string
	DeviceLocale string
	IPCountry    string
}

// FromRequest extracts event envelope fields from request.
// Backend-trustable fields only.
func FromRequest(r *http.Request) Envelope {
	platform := strings.TrimSpace(r.Header.Get("X-Platform"))
	if platform == "" {
		platform = "unknown"
	} else {
		platform = strings.ToLower(platform)
		if platform != "ios" && platform != "android" && platform != "web" && platform != "cli" {
			platform = "unknown"
		}
	}

	appVer := strings.TrimSpace(r.Header.Get("X-App-Version"))
	locale := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if locale == "" {
		locale = strings.TrimSpace(r.Header.Get("X-Device-Locale"))
	}

	sessionID := strings.TrimSpace(r.Header.Get("X-Session-Id"))

	return Envelope{
		SessionID:    sessionID,
		Platform:     platform,
		AppVersion:   appVer,
		DeviceLocale: locale,
	}
}

func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(ctxUserIDKey)
	if v == nil {
		return 0, false
	}
	uid, ok := v.(int)
	return uid, ok
}

// Client-provided idempotency key (optional)
// If present and duplicates, insert is ignored.
func SourceEventKeyFromRequest(r *http.Request) string {
	k := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Source-Event-Key"))
}

// Log inserts one analytics event.
// Never logs sensitive raw text; caller passes sanitized props.
// Failures are swallowed so analytics never breaks the core flow.
func Log(ctx context.Context, q db.Querier, env Envelope, eventName string, props any, sourceEventKey string) error {
	if eventName == "" {
		return nil
	}

	var userID int
	if env.UserID != 0 {
		userID = env.UserID
	} else if uid, ok := UserIDFromContext(ctx); ok {
		userID = uid
	} else {
		return nil
	}

	if env.Platform == "" {
		env.Platform = "unknown"
	}

	b, err := json.Marshal(props)
	if err != nil {
		return nil
	}

	if sourceEventKey != "" {
		_, _ = q.Exec(ctx, `
			INSERT INTO analytics_events (
				event_name, event_time,
				user_id, session_id,
				platform, app_version, device_locale, ip_country,
				source_event_key,
				properties
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_event_key) DO NOTHING
		`, eventName, time.Now().UTC(),
			userID, nullIfEmpty(env.SessionID),
			env.Platform, env.AppVersion, nullIfEmpty(env.DeviceLocale), nullIfEmpty(env.IPCountry),
			sourceEventKey,
			string(b),
		)
		return nil
	}

	_, _ = q.Exec(ctx, `
		INSERT INTO analytics_events (
			event_name, event_time,
			user_id, session_id,
			platform, app_version, device_locale, ip_country,
			properties
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventName, time.Now().UTC(),
		userID, nullIfEmpty(env.SessionID),
		env.Platform, env.AppVersion, nullIfEmpty(env.DeviceLocale), nullIfEmpty(env.IPCountry),
		string(b),
	)

	return nil
}

// LogRequest is Log with the envelope and idempotency key taken from r.
func LogRequest(r *http.Request, q db.Querier, userID int, eventName string, props any) {
	env := FromRequest(r)
	env.UserID = userID
	_ = Log(r.Context(), q, env, eventName, props, SourceEventKeyFromRequest(r))
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// TierFromPriority buckets the 1..5 task priority.
func TierFromPriority(priority int) string {
	switch {
	case priority >= 5:
		return "P1"
	case priority >= 3:
		return "P2"
	default:
		return "P3"
	}
}
