// Package jobs persists the chart render-job queue. Jobs are dequeued
// highest priority first, FIFO within a priority, under a lease that a
// crashed worker loses after it expires.
package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Status values for a job.
const (
	StatusPending = "pending"
	StatusLeased  = "leased"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// DefaultMaxAttempts is applied when a job is enqueued without one.
const DefaultMaxAttempts = 3

// Job is one persisted render job.
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    int             `json:"priority"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	// LeaseExpires is unix seconds; zero when not leased.
	LeaseExpires int64 `json:"lease_expires,omitempty"`
	// CreatedAt and UpdatedAt are unix nanoseconds; nanosecond resolution
	// keeps FIFO ordering stable for jobs enqueued in the same second.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Store is the queue persistence boundary. Postgres and SQLite back it.
type Store interface {
	// Enqueue persists a new pending job and returns it with its id and
	// timestamps filled in.
	Enqueue(ctx context.Context, kind string, payload json.RawMessage, priority int) (*Job, error)
	// Dequeue claims the highest-priority oldest pending job under a lease.
	// Returns nil with no error when the queue is empty.
	Dequeue(ctx context.Context, lease time.Duration) (*Job, error)
	// Complete marks a leased job done.
	Complete(ctx context.Context, id string) error
	// Fail records a failed attempt. The job returns to pending until its
	// attempts are exhausted, then it is marked failed.
	Fail(ctx context.Context, id, reason string) error
	// RequeueStale returns leased jobs whose lease expired to pending and
	// reports how many were requeued.
	RequeueStale(ctx context.Context) (int, error)
	// Get fetches one job by id.
	Get(ctx context.Context, id string) (*Job, error)
	Close() error
}
