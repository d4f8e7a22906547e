package tasks

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"schedule-management-backend/internal/db"
)

var ErrNotFound = errors.New("task not found")

const taskColumns = `id, title, description, location, category, priority, status,
	start_at, end_at, source_entry_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (ManualTask, error) {
	var (
		t   ManualTask
		src sql.NullInt64
	)
	err := s.Scan(&t.ID, &t.Title, &t.Description, &t.Location, &t.Category, &t.Priority, &t.Status,
		&t.StartAt, &t.EndAt, &src, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return ManualTask{}, err
	}
	if src.Valid {
		t.SourceEntryID = &src.Int64
	}
	return t, nil
}

// sortTasks orders by priority desc, then start asc, then id asc.
func sortTasks(result []ManualTask) {
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		if !result[i].StartAt.Equal(result[j].StartAt) {
			return result[i].StartAt.Before(result[j].StartAt)
		}
		return result[i].ID < result[j].ID
	})
}

func queryTasks(ctx context.Context, q db.Querier, where string, args ...any) ([]ManualTask, error) {
	rows, err := q.Query(ctx, `SELECT `+taskColumns+` FROM manual_tasks WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []ManualTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortTasks(result)
	return result, nil
}

func list(ctx context.Context, q db.Querier, userID int, status string) ([]ManualTask, error) {
	if status != "" {
		return queryTasks(ctx, q, `user_id = ? AND status = ?`, userID, status)
	}
	return queryTasks(ctx, q, `user_id = ?`, userID)
}

func get(ctx context.Context, q db.Querier, userID int, id int64) (ManualTask, error) {
	t, err := scanTask(q.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM manual_tasks WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ManualTask{}, ErrNotFound
	}
	return t, err
}

func insert(ctx context.Context, q db.Querier, userID int, req TaskRequest, now time.Time) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO manual_tasks (user_id, title, description, location, category, priority, status,
			start_at, end_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, userID, req.Title, req.Description, req.Location, req.Category, req.Priority, StatusPending,
		req.StartAt.UTC(), req.EndAt.UTC(), now, now).Scan(&id)
	return id, err
}

func update(ctx context.Context, q db.Querier, userID int, id int64, req TaskRequest, now time.Time) error {
	res, err := q.Exec(ctx, `
		UPDATE manual_tasks
		SET title = ?, description = ?, location = ?, category = ?, priority = ?,
			start_at = ?, end_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, req.Title, req.Description, req.Location, req.Category, req.Priority,
		req.StartAt.UTC(), req.EndAt.UTC(), now, id, userID)
	return affected(res, err)
}

func setStatus(ctx context.Context, q db.Querier, userID int, id int64, status string, now time.Time) error {
	res, err := q.Exec(ctx, `
		UPDATE manual_tasks SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?
	`, status, now, id, userID)
	return affected(res, err)
}

func remove(ctx context.Context, q db.Querier, userID int, id int64) error {
	res, err := q.Exec(ctx, `DELETE FROM manual_tasks WHERE id = ? AND user_id = ?`, id, userID)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// countBy returns COUNT(*) grouped by column for one user's rows of table.
func countBy(ctx context.Context, q db.Querier, table, column string, userID int) (map[string]int, error) {
	rows, err := q.Query(ctx, `SELECT `+column+`, COUNT(*) FROM `+table+` WHERE user_id = ? GROUP BY `+column, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}
