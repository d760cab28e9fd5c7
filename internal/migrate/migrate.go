// Package migrate applies the embedded goose migrations against the
// configured Postgres database. Migrations are embedded into the binary so
// the server and CLI never depend on a migrations directory existing next
// to wherever the binary happens to run from.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed all:sql
var embeddedMigrations embed.FS

func init() {
	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		panic(fmt.Sprintf("migrate: set goose dialect: %v", err))
	}
}

// Up applies every not-yet-applied migration.
func Up(db *sql.DB) error {
	if err := goose.Up(db, "sql"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func Down(db *sql.DB) error {
	if err := goose.Down(db, "sql"); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status prints the applied/pending state of every migration to stdout via
// goose's own reporter.
func Status(db *sql.DB) error {
	if err := goose.Status(db, "sql"); err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	return nil
}
