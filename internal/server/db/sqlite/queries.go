// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ccheshirecat/renderd/internal/server/db"
)

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	exec executor
}

var _ db.Queries = (*queries)(nil)

func (q *queries) RenderJobs() db.RenderJobRepository {
	return &renderJobRepo{exec: q.exec}
}

type renderJobRepo struct {
	exec executor
}

const renderJobColumns = `id, url, status, ready_signal, error_kind, error, duration_ms, html_bytes, created_at, updated_at`

func (r *renderJobRepo) Create(ctx context.Context, job *db.RenderJob) (int64, error) {
	res, err := r.exec.ExecContext(ctx,
		`INSERT INTO render_jobs (url, status, ready_signal) VALUES (?, ?, ?)`,
		job.URL, string(job.Status), job.ReadySignal)
	if err != nil {
		return 0, fmt.Errorf("insert render job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("render job id: %w", err)
	}
	job.ID = id
	return id, nil
}

func (r *renderJobRepo) Finish(ctx context.Context, id int64, status db.JobStatus, errorKind, errMsg string, durationMS, htmlBytes int64) error {
	res, err := r.exec.ExecContext(ctx,
		`UPDATE render_jobs
         SET status = ?, error_kind = ?, error = ?, duration_ms = ?, html_bytes = ?, updated_at = CURRENT_TIMESTAMP
         WHERE id = ?`,
		string(status), errorKind, errMsg, durationMS, htmlBytes, id)
	if err != nil {
		return fmt.Errorf("finish render job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish render job %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("finish render job %d: not found", id)
	}
	return nil
}

func (r *renderJobRepo) GetByID(ctx context.Context, id int64) (*db.RenderJob, error) {
	row := r.exec.QueryRowContext(ctx,
		`SELECT `+renderJobColumns+` FROM render_jobs WHERE id = ?`, id)
	job, err := scanRenderJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get render job %d: %w", id, err)
	}
	return job, nil
}

func (r *renderJobRepo) List(ctx context.Context, limit int) ([]db.RenderJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.exec.QueryContext(ctx,
		`SELECT `+renderJobColumns+` FROM render_jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list render jobs: %w", err)
	}
	defer rows.Close()

	var jobs []db.RenderJob
	for rows.Next() {
		job, err := scanRenderJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan render job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRenderJob(row rowScanner) (*db.RenderJob, error) {
	var job db.RenderJob
	var status string
	if err := row.Scan(
		&job.ID, &job.URL, &status, &job.ReadySignal, &job.ErrorKind, &job.Error,
		&job.DurationMS, &job.HTMLBytes, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = db.JobStatus(status)
	return &job, nil
}
