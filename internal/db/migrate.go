package db

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Migrate creates the tables if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if isSQLite(db.driver) {
		schema = sqliteSchema
	}
	if _, err := db.sql.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
