package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// goose keeps its base FS and dialect in package state.
var mu sync.Mutex

// Up applies all pending migrations for the dialect from the embedded files.
func Up(db *sql.DB, dialect Dialect) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(FS)
	defer goose.SetBaseFS(nil)

	gooseDialect := string(dialect)
	if dialect == SQLite {
		gooseDialect = "sqlite3"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, string(dialect)); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
