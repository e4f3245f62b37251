// Package inventory persists discovery history, session lifecycle events,
// and capture-run summaries to a SQLite database (spec §12), grounded on
// internal/db/db.go and internal/db/migrate.go's NewDB/PRAGMA/golang-migrate
// shape. Unlike the teacher's schema, which accumulates legacy installs and
// needs schema-detection/baselining, this schema is green-field: every
// database either has no schema_migrations table (apply migrations once) or
// already has one (apply any pending migrations), with no baselining path.
package inventory

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite connection holding the driver's operational history.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the database at path, applies the
// essential PRAGMAs, and migrates the schema up to the latest version.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("inventory: open %q: %w", path, err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// applyPragmas sets the WAL/synchronous/busy-timeout PRAGMAs the teacher's
// db.go applies to every SQLite connection it opens, regardless of whether
// the database was just created or already existed.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("inventory: exec %q: %w", pragma, err)
		}
	}
	return nil
}
