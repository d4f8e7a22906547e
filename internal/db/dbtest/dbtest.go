package dbtest

import (
	"context"
	"testing"
	"time"

	"schedule-management-backend/internal/db"
)

// Open returns a migrated in-memory sqlite database closed at test cleanup.
func Open(t testing.TB) *db.DB {
	t.Helper()

	database, err := db.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

// CreateUser inserts a bare user row and returns its id.
func CreateUser(t testing.TB, database *db.DB, email string) int {
	t.Helper()

	var id int
	err := database.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?) RETURNING id`,
		email, "x", time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}
