package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipsniper/api/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS clip_jobs (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS clip_jobs_state_idx ON clip_jobs (state);
`

// PostgresStore keeps records as JSONB rows, one per job
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and creates the table if needed.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Put(ctx context.Context, job *model.Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO clip_jobs (id, state, record, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, record = EXCLUDED.record, updated_at = now()`,
		job.ID, string(job.State), data)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM clip_jobs WHERE id = $1`, jobID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeJob(data)
}

func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM clip_jobs WHERE id = $1`, jobID)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]*model.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM clip_jobs ORDER BY updated_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		if job, err := decodeJob(data); err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, rows.Err()
}
