package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/schedule"
)

type analysisRow struct {
	ID               string
	UserID           int
	Type             Type
	Options          Options
	EntryIDs         []int64
	Status           string
	EntriesSubmitted int
	EntriesLocked    int
	EntriesSkipped   int
	ErrorMessage     string
	CreatedAt        time.Time
	CompletedAt      sql.NullTime
}

type entryRow struct {
	ID             int64
	UserID         int
	RawData        string
	IsLocked       bool
	Status         EntryStatus
	LockAnalysisID sql.NullString
}

// ----------------------------------------------------
// users / entries
// ----------------------------------------------------

func userExists(ctx context.Context, q db.Querier, userID int) (bool, error) {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// missingEntries returns the ids that do not exist or belong to someone else.
func missingEntries(ctx context.Context, q db.Querier, userID int, ids []int64) ([]int64, error) {
	marks, args := db.In(ids)
	rows, err := q.Query(ctx,
		`SELECT id FROM csv_task_entries WHERE user_id = ? AND id IN (`+marks+`)`,
		append([]any{userID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owned := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range ids {
		if !owned[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// lockEntry takes the lock for analysisID. It reports false when the entry
// is already locked by someone else.
func lockEntry(ctx context.Context, q db.Querier, userID int, entryID int64, analysisID string, now time.Time) (bool, error) {
	res, err := q.Exec(ctx, `
		UPDATE csv_task_entries
		SET is_locked = ?, analysis_status = ?, lock_analysis_id = ?, locked_at = ?,
		    error_message = '', updated_at = ?
		WHERE id = ? AND user_id = ? AND is_locked = ?
	`, true, EntryPending, analysisID, now, now, entryID, userID, false)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func unlockEntry(ctx context.Context, q db.Querier, userID int, entryID int64, now time.Time) (bool, error) {
	res, err := q.Exec(ctx, `
		UPDATE csv_task_entries
		SET is_locked = ?, analysis_status = ?, lock_analysis_id = NULL, locked_at = NULL, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_locked = ?
	`, false, EntryNone, now, entryID, userID, true)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// finishEntry releases the lock if analysisID still owns it.
func finishEntry(ctx context.Context, q db.Querier, entryID int64, analysisID string, status EntryStatus, errMsg string, now time.Time) (bool, error) {
	res, err := q.Exec(ctx, `
		UPDATE csv_task_entries
		SET is_locked = ?, analysis_status = ?, lock_analysis_id = NULL, locked_at = NULL,
		    error_message = ?, updated_at = ?
		WHERE id = ? AND lock_analysis_id = ? AND is_locked = ?
	`, false, status, errMsg, now, entryID, analysisID, true)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func markInProgress(ctx context.Context, q db.Querier, analysisID string, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE csv_task_entries
		SET analysis_status = ?, updated_at = ?
		WHERE lock_analysis_id = ? AND is_locked = ? AND analysis_status = ?
	`, EntryInProgress, now, analysisID, true, EntryPending)
	return err
}

// releaseAll fails every entry analysisID still holds.
func releaseAll(ctx context.Context, q db.Querier, analysisID, errMsg string, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE csv_task_entries
		SET is_locked = ?, analysis_status = ?, lock_analysis_id = NULL, locked_at = NULL,
		    error_message = ?, updated_at = ?
		WHERE lock_analysis_id = ? AND is_locked = ?
	`, false, EntryFailed, errMsg, now, analysisID, true)
	return err
}

func loadEntries(ctx context.Context, q db.Querier, ids []int64) (map[int64]entryRow, error) {
	out := make(map[int64]entryRow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	marks, args := db.In(ids)
	rows, err := q.Query(ctx, `
		SELECT id, user_id, raw_data, is_locked, analysis_status, lock_analysis_id
		FROM csv_task_entries
		WHERE id IN (`+marks+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e entryRow
		if err := rows.Scan(&e.ID, &e.UserID, &e.RawData, &e.IsLocked, &e.Status, &e.LockAnalysisID); err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

type importEntry struct {
	ID       int64
	IsLocked bool
}

// importEntries lists the entries of the user's imports. Unknown or foreign
// import ids are returned as missing.
func importEntries(ctx context.Context, q db.Querier, userID int, importIDs []string) ([]importEntry, []string, error) {
	marks, args := db.In(importIDs)
	rows, err := q.Query(ctx,
		`SELECT id FROM csv_imports WHERE user_id = ? AND id IN (`+marks+`)`,
		append([]any{userID}, args...)...)
	if err != nil {
		return nil, nil, err
	}
	found := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, err
		}
		found[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var missing []string
	for _, id := range importIDs {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, missing, nil
	}

	rows, err = q.Query(ctx, `
		SELECT id, is_locked
		FROM csv_task_entries
		WHERE user_id = ? AND import_id IN (`+marks+`)
		ORDER BY import_id, row_number, id
	`, append([]any{userID}, args...)...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []importEntry
	for rows.Next() {
		var e importEntry
		if err := rows.Scan(&e.ID, &e.IsLocked); err != nil {
			return nil, nil, err
		}
		out = append(out, e)
	}
	return out, nil, rows.Err()
}

// ----------------------------------------------------
// analyses
// ----------------------------------------------------

func insertAnalysis(ctx context.Context, q db.Querier, a *analysisRow) error {
	opts, err := json.Marshal(a.Options)
	if err != nil {
		return err
	}
	ids, err := json.Marshal(a.EntryIDs)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO csv_analyses (
			id, user_id, analysis_type, options, entry_ids, status,
			entries_submitted, entries_locked, entries_skipped, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Type, string(opts), string(ids), a.Status,
		a.EntriesSubmitted, a.EntriesLocked, a.EntriesSkipped, a.CreatedAt)
	return err
}

func getAnalysis(ctx context.Context, q db.Querier, id string) (*analysisRow, error) {
	var (
		a         analysisRow
		opts, ids string
	)
	err := q.QueryRow(ctx, `
		SELECT id, user_id, analysis_type, options, entry_ids, status,
		       entries_submitted, entries_locked, entries_skipped,
		       error_message, created_at, completed_at
		FROM csv_analyses
		WHERE id = ?
	`, id).Scan(
		&a.ID, &a.UserID, &a.Type, &opts, &ids, &a.Status,
		&a.EntriesSubmitted, &a.EntriesLocked, &a.EntriesSkipped,
		&a.ErrorMessage, &a.CreatedAt, &a.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(opts), &a.Options); err != nil {
		return nil, fmt.Errorf("decode options of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(ids), &a.EntryIDs); err != nil {
		return nil, fmt.Errorf("decode entry ids of %s: %w", id, err)
	}
	return &a, nil
}

// startAnalysis moves a pending analysis to processing. It reports false when
// the analysis is already finished.
func startAnalysis(ctx context.Context, q db.Querier, id string) (bool, error) {
	res, err := q.Exec(ctx, `
		UPDATE csv_analyses SET status = ?
		WHERE id = ? AND status IN (?, ?)
	`, StatusProcessing, id, StatusPending, StatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func finishAnalysis(ctx context.Context, q db.Querier, id, status, errMsg string, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE csv_analyses SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, status, errMsg, now, id)
	return err
}

// unfinishedAnalyses lists analyses in the given states, oldest first.
func unfinishedAnalyses(ctx context.Context, q db.Querier, statuses ...string) ([]string, error) {
	marks, args := db.In(statuses)
	rows, err := q.Query(ctx,
		`SELECT id FROM csv_analyses WHERE status IN (`+marks+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ----------------------------------------------------
// results
// ----------------------------------------------------

type resultRow struct {
	EntryID int64
	Status  string
	RawData string
	Parsed  *schedule.Event
	AI      *AIAnalysis
	Error   string
}

func upsertResult(ctx context.Context, q db.Querier, analysisID string, r resultRow, now time.Time) error {
	parsed, err := nullJSON(r.Parsed)
	if err != nil {
		return err
	}
	aiMeta, err := nullJSON(r.AI)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO csv_analysis_results (
			analysis_id, entry_id, status, raw_data, parsed_result, ai_metadata, error_message, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (analysis_id, entry_id) DO UPDATE SET
			status = excluded.status,
			raw_data = excluded.raw_data,
			parsed_result = excluded.parsed_result,
			ai_metadata = excluded.ai_metadata,
			error_message = excluded.error_message
	`, analysisID, r.EntryID, r.Status, r.RawData, parsed, aiMeta, r.Error, now)
	return err
}

func listResults(ctx context.Context, q db.Querier, analysisID string) ([]EntryResult, error) {
	rows, err := q.Query(ctx, `
		SELECT entry_id, status, raw_data, parsed_result, ai_metadata, error_message
		FROM csv_analysis_results
		WHERE analysis_id = ?
		ORDER BY entry_id
	`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []EntryResult{}
	for rows.Next() {
		var (
			r              EntryResult
			raw            string
			parsed, aiMeta sql.NullString
		)
		if err := rows.Scan(&r.EntryID, &r.Status, &raw, &parsed, &aiMeta, &r.ErrorMessage); err != nil {
			return nil, err
		}
		r.OriginalData = json.RawMessage(raw)
		if parsed.Valid {
			if err := json.Unmarshal([]byte(parsed.String), &r.ParsedResult); err != nil {
				return nil, fmt.Errorf("decode parsed result of entry %d: %w", r.EntryID, err)
			}
		}
		if aiMeta.Valid {
			if err := json.Unmarshal([]byte(aiMeta.String), &r.AIAnalysis); err != nil {
				return nil, fmt.Errorf("decode ai metadata of entry %d: %w", r.EntryID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// completedEvents returns the latest successful parse of every completed
// entry of the user outside the given analysis.
func completedEvents(ctx context.Context, q db.Querier, userID int, excludeAnalysis string) ([]schedule.Scheduled, error) {
	rows, err := q.Query(ctx, `
		SELECT r.entry_id, r.parsed_result
		FROM csv_analysis_results r
		JOIN csv_task_entries e ON e.id = r.entry_id
		WHERE e.user_id = ? AND e.analysis_status = ? AND r.status = ?
		  AND r.parsed_result IS NOT NULL AND r.analysis_id <> ?
		ORDER BY r.id DESC
	`, userID, EntryCompleted, ResultSuccess, excludeAnalysis)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[int64]bool{}
	var out []schedule.Scheduled
	for rows.Next() {
		var (
			id     int64
			parsed string
		)
		if err := rows.Scan(&id, &parsed); err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		var ev schedule.Event
		if err := json.Unmarshal([]byte(parsed), &ev); err != nil {
			continue
		}
		out = append(out, schedule.Scheduled{EntryID: id, Event: ev})
	}
	return out, rows.Err()
}

// ----------------------------------------------------
// status
// ----------------------------------------------------

func entryCounts(ctx context.Context, q db.Querier, userID int) (StatusResponse, error) {
	s := StatusResponse{UserID: userID}
	err := q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_locked = ? AND analysis_status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN analysis_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN analysis_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN analysis_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN analysis_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_locked = ? THEN 1 ELSE 0 END), 0)
		FROM csv_task_entries
		WHERE user_id = ?
	`, false, EntryNone, EntryFailed,
		EntryPending, EntryInProgress, EntryCompleted, EntryFailed,
		true, userID,
	).Scan(
		&s.TotalEntries, &s.AvailableForAnalysis,
		&s.PendingAnalysis, &s.InProgress, &s.Completed, &s.Failed,
		&s.Locked,
	)
	return s, err
}

func oldestLock(ctx context.Context, q db.Querier, userID int) (*time.Time, error) {
	var at time.Time
	err := q.QueryRow(ctx, `
		SELECT locked_at FROM csv_task_entries
		WHERE user_id = ? AND is_locked = ? AND locked_at IS NOT NULL
		ORDER BY locked_at ASC
		LIMIT 1
	`, userID, true).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func nullJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case *schedule.Event:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *AIAnalysis:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
