package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrate brings db's schema up to the latest embedded migration, the way
// internal/database.RunMigrations drives goose against its Postgres pool:
// one dialect, one *sql.DB, one directory, goose owns the version
// bookkeeping table.
func migrate(db *sql.DB) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: goose dialect: %w", err)
	}
	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: migration failed: %w", err)
	}
	return nil
}
