package auth

import (
	"net/http"

	"go.uber.org/zap"

	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
)

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	// JWT is stateless: the client drops its token.
	httpx.OK(w, map[string]any{"ok": true})
}

// DeleteAccount removes the user and everything they own in one transaction.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	ctx := r.Context()
	err := h.DB.WithTx(ctx, func(tx *db.Tx) error {
		steps := []string{
			`DELETE FROM analytics_events WHERE user_id = ?`,
			`DELETE FROM manual_tasks WHERE user_id = ?`,
			`DELETE FROM csv_analysis_results WHERE analysis_id IN (SELECT id FROM csv_analyses WHERE user_id = ?)`,
			`DELETE FROM csv_analyses WHERE user_id = ?`,
			`DELETE FROM csv_task_entries WHERE user_id = ?`,
			`DELETE FROM csv_imports WHERE user_id = ?`,
			`DELETE FROM schedule_templates WHERE user_id = ?`,
			`DELETE FROM users WHERE id = ?`,
		}
		for _, q := range steps {
			if _, err := tx.Exec(ctx, q, uid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.Logger.Error("delete account failed", zap.Int("user_id", uid), zap.Error(err))
		httpx.Fail(w, err)
		return
	}

	httpx.OK(w, map[string]any{"ok": true})
}
