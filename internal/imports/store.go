package imports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"schedule-management-backend/internal/analysis"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/schedule"
)

var (
	ErrNotFound = errors.New("import not found")
	ErrLocked   = errors.New("import has entries locked by an analysis")
)

type Import struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	TemplateID *int64    `json:"template_id,omitempty"`
	RowCount   int       `json:"row_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type Entry struct {
	ID         int64               `json:"id"`
	ImportID   string              `json:"import_id"`
	RowNumber  int                 `json:"row_number"`
	Lop        string              `json:"lop"`
	Ngay       string              `json:"ngay"`
	Phong      string              `json:"phong"`
	MonHoc     string              `json:"mon_hoc"`
	GioBatDau  string              `json:"gio_bat_dau"`
	GioKetThuc string              `json:"gio_ket_thuc"`
	RawData    json.RawMessage     `json:"raw_data"`
	AIAnalysis analysis.EntryState `json:"ai_analysis"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

type CreateResult struct {
	ImportID       string  `json:"import_id"`
	EntriesCreated int     `json:"entries_created"`
	EntryIDs       []int64 `json:"entry_ids"`
}

// create stores the import and its rows in one transaction.
func create(ctx context.Context, dbx *db.DB, userID int, fileName string, templateID int64, rows []schedule.Row, lines []int) (*CreateResult, error) {
	now := time.Now().UTC()
	res := &CreateResult{ImportID: uuid.NewString(), EntryIDs: make([]int64, 0, len(rows))}

	var tpl sql.NullInt64
	if templateID > 0 {
		tpl = sql.NullInt64{Int64: templateID, Valid: true}
	}

	err := dbx.WithTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO csv_imports (id, user_id, file_name, template_id, row_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, res.ImportID, userID, fileName, tpl, len(rows), now)
		if err != nil {
			return err
		}

		for i, row := range rows {
			raw, err := json.Marshal(row)
			if err != nil {
				return err
			}

			var id int64
			err = tx.QueryRow(ctx, `
				INSERT INTO csv_task_entries (
					user_id, import_id, row_number, raw_data,
					lop, ngay, phong, mon_hoc, gio_bat_dau, gio_ket_thuc,
					is_locked, analysis_status, updated_at
				)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING id
			`, userID, res.ImportID, lines[i], string(raw),
				row.Lop, row.Ngay, row.Phong, row.MonHoc, row.GioBatDau, row.GioKetThuc,
				false, analysis.EntryNone, now,
			).Scan(&id)
			if err != nil {
				return err
			}
			res.EntryIDs = append(res.EntryIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.EntriesCreated = len(res.EntryIDs)
	return res, nil
}

func list(ctx context.Context, q db.Querier, userID int) ([]Import, error) {
	rows, err := q.Query(ctx, `
		SELECT id, file_name, template_id, row_count, created_at
		FROM csv_imports
		WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Import{}
	for rows.Next() {
		var (
			im  Import
			tpl sql.NullInt64
		)
		if err := rows.Scan(&im.ID, &im.FileName, &tpl, &im.RowCount, &im.CreatedAt); err != nil {
			return nil, err
		}
		if tpl.Valid {
			im.TemplateID = &tpl.Int64
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func exists(ctx context.Context, q db.Querier, userID int, importID string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM csv_imports WHERE id = ? AND user_id = ?`, importID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func entries(ctx context.Context, q db.Querier, userID int, importID string) ([]Entry, error) {
	ok, err := exists(ctx, q, userID, importID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := q.Query(ctx, `
		SELECT id, import_id, row_number, lop, ngay, phong, mon_hoc, gio_bat_dau, gio_ket_thuc,
		       raw_data, is_locked, analysis_status, lock_analysis_id, locked_at, error_message, updated_at
		FROM csv_task_entries
		WHERE user_id = ? AND import_id = ?
		ORDER BY row_number, id
	`, userID, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			raw      string
			lockID   sql.NullString
			lockedAt sql.NullTime
		)
		if err := rows.Scan(
			&e.ID, &e.ImportID, &e.RowNumber, &e.Lop, &e.Ngay, &e.Phong, &e.MonHoc, &e.GioBatDau, &e.GioKetThuc,
			&raw, &e.AIAnalysis.IsLocked, &e.AIAnalysis.Status, &lockID, &lockedAt, &e.AIAnalysis.ErrorMessage, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		e.RawData = json.RawMessage(raw)
		e.AIAnalysis.LockAnalysisID = lockID.String
		if lockedAt.Valid {
			t := lockedAt.Time
			e.AIAnalysis.LockedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// remove deletes an import and its entries unless one of them is locked.
func remove(ctx context.Context, dbx *db.DB, userID int, importID string) error {
	return dbx.WithTx(ctx, func(tx *db.Tx) error {
		ok, err := exists(ctx, tx, userID, importID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}

		var locked int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM csv_task_entries WHERE import_id = ? AND is_locked = ?
		`, importID, true).Scan(&locked); err != nil {
			return err
		}
		if locked > 0 {
			return ErrLocked
		}

		if _, err := tx.Exec(ctx, `DELETE FROM csv_task_entries WHERE import_id = ?`, importID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM csv_imports WHERE id = ? AND user_id = ?`, importID, userID)
		return err
	})
}
