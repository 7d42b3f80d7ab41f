package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/models"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, generation_id, scene_id, type, status, attempts, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.GenerationID, job.SceneID, job.Type, job.Status, job.Attempts,
		[]byte(job.Payload),
	).Scan(&job.CreatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT
			id, generation_id, scene_id, type, status, attempts, payload,
			error_message, started_at, finished_at, created_at
		FROM jobs
		WHERE id = $1
	`

	job := &models.Job{}
	var payload []byte
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.GenerationID, &job.SceneID, &job.Type, &job.Status,
		&job.Attempts, &payload, &job.ErrorMessage, &job.StartedAt,
		&job.FinishedAt, &job.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Payload = payload
	return job, nil
}

func (db *DB) GetGenerationJobs(ctx context.Context, generationID uuid.UUID) ([]models.Job, error) {
	query := `
		SELECT
			id, generation_id, scene_id, type, status, attempts, payload,
			error_message, started_at, finished_at, created_at
		FROM jobs
		WHERE generation_id = $1
		ORDER BY created_at
	`

	rows, err := db.QueryContext(ctx, query, generationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		var payload []byte
		err := rows.Scan(
			&job.ID, &job.GenerationID, &job.SceneID, &job.Type, &job.Status,
			&job.Attempts, &payload, &job.ErrorMessage, &job.StartedAt,
			&job.FinishedAt, &job.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job.Payload = payload
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// StartJob marks a job running and counts the attempt.
func (db *DB) StartJob(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, started_at = $2, attempts = attempts + 1
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusRunning, time.Now(), id)
	return err
}

func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET status = $1, finished_at = $2 WHERE id = $3`
	_, err := db.ExecContext(ctx, query, models.JobStatusSucceeded, time.Now(), id)
	return err
}

func (db *DB) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, finished_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, message, time.Now(), id)
	return err
}
