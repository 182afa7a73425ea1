package db

import (
	"context"
	"time"
)

// JobStatus enumerates the lifecycle phases tracked for render jobs.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// RenderJob models the database representation of one render call. The
// rendered HTML itself is not persisted, only its size.
type RenderJob struct {
	ID          int64
	URL         string
	Status      JobStatus
	ReadySignal string
	ErrorKind   string
	Error       string
	DurationMS  int64
	HTMLBytes   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store describes the persistence surface consumed by the render service.
type Store interface {
	Close(ctx context.Context) error
	Queries() Queries
	WithTx(ctx context.Context, fn func(Queries) error) error
}

// Queries exposes repository accessors bound to a specific connection scope
// (root connection or transaction).
type Queries interface {
	RenderJobs() RenderJobRepository
}

// RenderJobRepository persists render job history.
type RenderJobRepository interface {
	Create(ctx context.Context, job *RenderJob) (int64, error)
	Finish(ctx context.Context, id int64, status JobStatus, errorKind, errMsg string, durationMS, htmlBytes int64) error
	GetByID(ctx context.Context, id int64) (*RenderJob, error)
	List(ctx context.Context, limit int) ([]RenderJob, error)
}
