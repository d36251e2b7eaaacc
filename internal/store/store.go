package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned for lookups of unknown job IDs.
var ErrNotFound = errors.New("job not found")

// JobRecord is the persisted history of one rebuild invocation.
type JobRecord struct {
	ID         string     `json:"id"`
	Journal    string     `json:"journal"`
	Kind       string     `json:"kind"`
	ResourceID string     `json:"resourceId,omitempty"`
	PageName   string     `json:"pageName,omitempty"`
	Phase      string     `json:"phase"`
	ExitCode   *int       `json:"exitCode,omitempty"`
	OutputPath string     `json:"outputPath,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Store persists rebuild job history on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateJob inserts a new job in its starting phase.
func (s *Store) CreateJob(ctx context.Context, job JobRecord) error {
	const query = `INSERT INTO rebuild_jobs (id, journal, kind, resource_id, page_name, phase, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		job.ID, job.Journal, job.Kind, job.ResourceID, job.PageName, job.Phase, job.StartedAt)
	return err
}

// FinishJob records the terminal outcome of a job.
func (s *Store) FinishJob(ctx context.Context, id, phase string, exitCode int, outputPath, errMsg string, finishedAt time.Time) error {
	const query = `UPDATE rebuild_jobs
		SET phase = $2, exit_code = $3, output_path = $4, error = $5, finished_at = $6
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, phase, exitCode, outputPath, errMsg, finishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob fetches one job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	const query = `SELECT id, journal, kind, resource_id, page_name, phase, exit_code, output_path, error, started_at, finished_at
		FROM rebuild_jobs WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, id)
	var j JobRecord
	if err := row.Scan(&j.ID, &j.Journal, &j.Kind, &j.ResourceID, &j.PageName, &j.Phase,
		&j.ExitCode, &j.OutputPath, &j.Error, &j.StartedAt, &j.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// ListRecent returns the newest jobs, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, journal, kind, resource_id, page_name, phase, exit_code, output_path, error, started_at, finished_at
		FROM rebuild_jobs ORDER BY started_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var j JobRecord
		if err := rows.Scan(&j.ID, &j.Journal, &j.Kind, &j.ResourceID, &j.PageName, &j.Phase,
			&j.ExitCode, &j.OutputPath, &j.Error, &j.StartedAt, &j.FinishedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
