package jobs

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/chartvoice/chartvoice/pkg/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqlStore implements Store over database/sql for both backends. Queries are
// written with ? placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db       *sql.DB
	postgres bool
	log      *slog.Logger
	now      func() time.Time
}

func newSQLStore(db *sql.DB, postgres bool, logger *slog.Logger) *sqlStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqlStore{
		db:       db,
		postgres: postgres,
		log:      logger.With("component", "jobs_store"),
		now:      time.Now,
	}
}

func (s *sqlStore) migrate(dialect string) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $N for PostgreSQL.
func (s *sqlStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const jobColumns = "id, kind, payload, priority, status, attempts, max_attempts, last_error, lease_expires, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var payload sql.NullString
	err := row.Scan(&job.ID, &job.Kind, &payload, &job.Priority, &job.Status,
		&job.Attempts, &job.MaxAttempts, &job.LastError, &job.LeaseExpires,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if payload.Valid && payload.String != "" {
		job.Payload = json.RawMessage(payload.String)
	}
	return &job, nil
}

func (s *sqlStore) Enqueue(ctx context.Context, kind string, payload json.RawMessage, priority int) (*Job, error) {
	if strings.TrimSpace(kind) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("job kind is required", "kind")
	}
	now := s.now().UnixNano()
	job := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := s.rebind(`INSERT INTO jobs (id, kind, payload, priority, status, attempts, max_attempts, last_error, lease_expires, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, '', 0, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Kind, string(job.Payload), job.Priority, job.Status,
		job.MaxAttempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.log.Debug("job enqueued", "id", job.ID, "kind", kind, "priority", priority)
	return job, nil
}

func (s *sqlStore) Dequeue(ctx context.Context, lease time.Duration) (*Job, error) {
	if lease <= 0 {
		lease = time.Minute
	}
	now := s.now()

	pick := `SELECT id FROM jobs WHERE status = ? ORDER BY priority DESC, created_at ASC LIMIT 1`
	if s.postgres {
		pick += ` FOR UPDATE SKIP LOCKED`
	}
	query := s.rebind(`UPDATE jobs SET status = ?, lease_expires = ?, updated_at = ?
		WHERE id = (` + pick + `) RETURNING ` + jobColumns)

	row := s.db.QueryRowContext(ctx, query,
		StatusLeased, now.Add(lease).Unix(), now.UnixNano(), StatusPending)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return job, nil
}

func (s *sqlStore) Complete(ctx context.Context, id string) error {
	query := s.rebind(`UPDATE jobs SET status = ?, lease_expires = 0, updated_at = ?
		WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query, StatusDone, s.now().UnixNano(), id, StatusLeased)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("no leased job %s", id))
	}
	return nil
}

func (s *sqlStore) Fail(ctx context.Context, id, reason string) error {
	query := s.rebind(`UPDATE jobs SET
			attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN ? ELSE ? END,
			last_error = ?,
			lease_expires = 0,
			updated_at = ?
		WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query,
		StatusFailed, StatusPending, reason, s.now().UnixNano(), id, StatusLeased)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("no leased job %s", id))
	}
	return nil
}

func (s *sqlStore) RequeueStale(ctx context.Context) (int, error) {
	query := s.rebind(`UPDATE jobs SET status = ?, lease_expires = 0, updated_at = ?
		WHERE status = ? AND lease_expires < ?`)
	res, err := s.db.ExecContext(ctx, query,
		StatusPending, s.now().UnixNano(), StatusLeased, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.log.Info("requeued stale jobs", "count", affected)
	}
	return int(affected), nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (*Job, error) {
	query := s.rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError(fmt.Sprintf("no job %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
