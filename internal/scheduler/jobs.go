package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("scheduler: job not found")

type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
)

// Job is a persisted one-shot job. Key identifies the logical job; a
// second schedule for the same key replaces the first.
type Job struct {
	ID        int64
	Key       string
	Kind      string
	Payload   []byte
	RunAt     time.Time
	Status    JobStatus
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type JobStore interface {
	Upsert(ctx context.Context, key, kind string, payload []byte, runAt time.Time) (*Job, error)
	GetByKey(ctx context.Context, key string) (*Job, error)
	DeleteByKey(ctx context.Context, key string) error
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type PGJobStore struct{ pool *pgxpool.Pool }

func NewPGJobStore(pool *pgxpool.Pool) *PGJobStore { return &PGJobStore{pool: pool} }

const jobCols = `id, key, kind, payload, run_at, status, last_error, created_at, updated_at`

func (s *PGJobStore) Upsert(ctx context.Context, key, kind string, payload []byte, runAt time.Time) (*Job, error) {
	const q = `INSERT INTO scheduled_jobs (key, kind, payload, run_at, status)
  VALUES ($1,$2,$3,$4,'scheduled')
  ON CONFLICT (key) DO UPDATE
  SET kind=$2, payload=$3, run_at=$4, status='scheduled', last_error=NULL, updated_at=now()
  RETURNING ` + jobCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanJob(s.pool.QueryRow(ctx, q, key, kind, payload, runAt))
}

func (s *PGJobStore) GetByKey(ctx context.Context, key string) (*Job, error) {
	const q = `SELECT ` + jobCols + ` FROM scheduled_jobs WHERE key=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	j, err := scanJob(s.pool.QueryRow(ctx, q, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return j, err
}

func (s *PGJobStore) DeleteByKey(ctx context.Context, key string) error {
	const q = `DELETE FROM scheduled_jobs WHERE key=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, q, key)
	return err
}

func (s *PGJobStore) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT ` + jobCols + ` FROM scheduled_jobs
  WHERE status='scheduled' AND run_at <= $1
  ORDER BY run_at
  LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	js := make([]Job, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		js = append(js, *j)
	}
	return js, rows.Err()
}

func (s *PGJobStore) MarkDone(ctx context.Context, id int64) error {
	const q = `UPDATE scheduled_jobs SET status='done', updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, q, id)
	return err
}

func (s *PGJobStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	const q = `UPDATE scheduled_jobs SET status='failed', last_error=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, q, id, reason)
	return err
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Key, &j.Kind, &j.Payload, &j.RunAt, &j.Status, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

var _ JobStore = (*PGJobStore)(nil)
