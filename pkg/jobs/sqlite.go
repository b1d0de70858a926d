package jobs

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens a SQLite-backed queue at path and runs migrations.
// Use ":memory:" for an ephemeral queue.
func NewSQLiteStore(path string, logger *slog.Logger) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// A single connection sidesteps table locking between pool members.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	store := newSQLStore(db, false, logger)
	if err := store.migrate("sqlite3"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
