package jobs

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresStore opens a PostgreSQL-backed queue and runs migrations.
// dsn is a standard postgres connection string.
func NewPostgresStore(dsn string, logger *slog.Logger) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := newSQLStore(db, true, logger)
	if err := store.migrate("postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
