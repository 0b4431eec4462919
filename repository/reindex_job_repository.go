package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagine-rag-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReindexJobRepository handles database operations for reindex jobs
type ReindexJobRepository struct {
	db *pgxpool.Pool
}

// NewReindexJobRepository creates a new reindex job repository
func NewReindexJobRepository(db *pgxpool.Pool) *ReindexJobRepository {
	return &ReindexJobRepository{db: db}
}

// Create creates a new reindex job
func (r *ReindexJobRepository) Create(ctx context.Context, job *models.ReindexJob) error {
	query := `
		INSERT INTO reindex_jobs (status, collections, steps)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		string(job.Status),
		collectionStrings(job.Collections),
		job.Steps,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

// GetByID retrieves a reindex job by ID
func (r *ReindexJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReindexJob, error) {
	job := &models.ReindexJob{}
	query := `
		SELECT id, status, collections, steps, entities, chunks, failures,
			error_message, created_at, updated_at, completed_at
		FROM reindex_jobs
		WHERE id = $1`

	var status string
	var collections []string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&status,
		&collections,
		&job.Steps,
		&job.Entities,
		&job.Chunks,
		&job.Failures,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reindex job: %w", err)
	}

	job.Status = models.ReindexJobStatus(status)
	job.Collections = make([]models.Collection, 0, len(collections))
	for _, c := range collections {
		job.Collections = append(job.Collections, models.Collection(c))
	}
	if job.Steps == nil {
		job.Steps = make(models.ReindexSteps, 0)
	}
	return job, nil
}

// UpdateStatus updates the status of a reindex job
func (r *ReindexJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReindexJobStatus) error {
	query := `
		UPDATE reindex_jobs SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, string(status))
	return err
}

// UpdateProgress stores the per-collection steps and running totals
func (r *ReindexJobRepository) UpdateProgress(ctx context.Context, job *models.ReindexJob) error {
	query := `
		UPDATE reindex_jobs SET
			steps = $2,
			entities = $3,
			chunks = $4,
			failures = $5,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, job.ID, job.Steps, job.Entities, job.Chunks, job.Failures)
	return err
}

// Complete marks a reindex job as completed
func (r *ReindexJobRepository) Complete(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE reindex_jobs SET
			status = $2,
			completed_at = $3,
			updated_at = $3
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, string(models.JobStatusCompleted), now)
	return err
}

// Fail marks a reindex job as failed
func (r *ReindexJobRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE reindex_jobs SET
			status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, string(models.JobStatusFailed), errorMessage)
	return err
}
