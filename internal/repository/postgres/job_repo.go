package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/config"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
)

// Ensure pgJobRepo implements repository.JobRepository.
var _ repository.JobRepository = (*pgJobRepo)(nil)

type pgJobRepo struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool sized from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresJobRepository creates a new PostgreSQL-backed job repository.
func NewPostgresJobRepository(pool *pgxpool.Pool) repository.JobRepository {
	return &pgJobRepo{pool: pool}
}

const jobColumns = `id, owner_id, task_type, status, result_reference, error_message, created_at, finished_at`

func (r *pgJobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, owner_id, task_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, query, job.ID, job.OwnerID, job.TaskType, domain.StatusPending, now)
	if err != nil {
		return fmt.Errorf("postgres: create job: %w", err)
	}
	job.Status = domain.StatusPending
	job.CreatedAt = now
	return nil
}

func (r *pgJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: get job by id: %w", err)
	}
	return job, nil
}

// UpdateTerminal is the only mutation after insertion. The status guard in
// the WHERE clause makes concurrent terminal writes race-free: exactly one
// of them affects a row.
func (r *pgJobRepo) UpdateTerminal(ctx context.Context, id uuid.UUID, update domain.TerminalUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = $2, result_reference = $3, error_message = $4, finished_at = $5
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, id, update.Status,
		nullable(update.ResultReference), nullable(update.ErrorMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: update terminal: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check job existence: %w", err)
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return domain.ErrJobAlreadyTerminal
}

func (r *pgJobRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale pending: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stale pending: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate stale pending: %w", err)
	}
	return jobs, nil
}

func (r *pgJobRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	job := &domain.Job{}
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.TaskType, &job.Status,
		&job.ResultReference, &job.ErrorMessage,
		&job.CreatedAt, &job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
