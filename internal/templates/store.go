package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"schedule-management-backend/internal/db"
)

var ErrNotFound = errors.New("template not found")

// Resolve returns the template an import should use: the builtin one for id
// 0, otherwise a template owned by userID.
func Resolve(ctx context.Context, q db.Querier, userID int, id int64) (Template, error) {
	if id == 0 {
		return Builtin(), nil
	}
	return get(ctx, q, userID, id)
}

func get(ctx context.Context, q db.Querier, userID int, id int64) (Template, error) {
	var (
		t       Template
		owner   sql.NullInt64
		columns string
	)
	err := q.QueryRow(ctx, `
		SELECT id, user_id, name, profession, columns, created_at
		FROM schedule_templates
		WHERE id = ? AND (user_id = ? OR user_id IS NULL)
	`, id, userID).Scan(&t.ID, &owner, &t.Name, &t.Profession, &columns, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, err
	}
	if owner.Valid {
		uid := int(owner.Int64)
		t.UserID = &uid
	} else {
		t.Builtin = true
	}
	if err := json.Unmarshal([]byte(columns), &t.Columns); err != nil {
		return Template{}, fmt.Errorf("decode columns of template %d: %w", id, err)
	}
	return t, nil
}

func list(ctx context.Context, q db.Querier, userID int) ([]Template, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, name, profession, columns, created_at
		FROM schedule_templates
		WHERE user_id = ? OR user_id IS NULL
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Template{Builtin()}
	for rows.Next() {
		var (
			t       Template
			owner   sql.NullInt64
			columns string
		)
		if err := rows.Scan(&t.ID, &owner, &t.Name, &t.Profession, &columns, &t.CreatedAt); err != nil {
			return nil, err
		}
		if owner.Valid {
			uid := int(owner.Int64)
			t.UserID = &uid
		} else {
			t.Builtin = true
		}
		if err := json.Unmarshal([]byte(columns), &t.Columns); err != nil {
			return nil, fmt.Errorf("decode columns of template %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insert(ctx context.Context, q db.Querier, t *Template) error {
	columns, err := json.Marshal(t.Columns)
	if err != nil {
		return err
	}
	return q.QueryRow(ctx, `
		INSERT INTO schedule_templates (user_id, name, profession, columns, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, *t.UserID, t.Name, t.Profession, string(columns), t.CreatedAt).Scan(&t.ID)
}

// remove deletes a user-owned template. Shared templates cannot be deleted.
func remove(ctx context.Context, q db.Querier, userID int, id int64) error {
	res, err := q.Exec(ctx, `DELETE FROM schedule_templates WHERE id = ? AND user_id = ?`, id, userID)
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
