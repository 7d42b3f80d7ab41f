package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/models"
)

func (db *DB) CreateGeneration(ctx context.Context, g *models.Generation) error {
	settings, err := json.Marshal(g.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := `
		INSERT INTO generations (id, idea, status, settings, error_message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		g.ID, g.Idea, g.Status, settings, g.Error,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
}

// GetGeneration loads the full aggregate: the generation row plus its scene
// sequence and the index-aligned video states, ordered by position.
func (db *DB) GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	query := `
		SELECT id, idea, status, settings, error_message, created_at, updated_at
		FROM generations
		WHERE id = $1
	`

	g := &models.Generation{}
	var settings []byte
	err := db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Idea, &g.Status, &settings, &g.Error, &g.CreatedAt, &g.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("generation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}

	if err := json.Unmarshal(settings, &g.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	g.Scenes, g.VideoStates, err = db.loadScenes(ctx, id)
	if err != nil {
		return nil, err
	}

	return g, nil
}

// ListGenerations returns generation headers (no scenes) newest first.
func (db *DB) ListGenerations(ctx context.Context, limit, offset int) ([]models.Generation, error) {
	query := `
		SELECT id, idea, status, settings, error_message, created_at, updated_at
		FROM generations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	var out []models.Generation
	for rows.Next() {
		var g models.Generation
		var settings []byte
		err := rows.Scan(&g.ID, &g.Idea, &g.Status, &settings, &g.Error, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		if err := json.Unmarshal(settings, &g.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
		out = append(out, g)
	}

	return out, nil
}

func (db *DB) UpdateGenerationStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus) error {
	query := `UPDATE generations SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	return err
}

func (db *DB) UpdateGenerationError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE generations
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.GenerationStatusFailed, message, time.Now(), id)
	return err
}

func (db *DB) UpdateGenerationSettings(ctx context.Context, id uuid.UUID, s models.Settings) error {
	settings, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := `UPDATE generations SET settings = $1, updated_at = $2 WHERE id = $3`
	_, err = db.ExecContext(ctx, query, settings, time.Now(), id)
	return err
}

func (db *DB) DeleteGeneration(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM generations WHERE id = $1`, id)
	return err
}
