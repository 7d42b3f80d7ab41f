package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/models"
)

func (db *DB) loadScenes(ctx context.Context, generationID uuid.UUID) ([]models.Scene, []models.VideoState, error) {
	query := `
		SELECT
			id, generation_id, position, parent_id, image, mime_type, prompt,
			error_message, prev_image, prev_mime_type, video_state, created_at
		FROM scenes
		WHERE generation_id = $1
		ORDER BY position
	`

	rows, err := db.QueryContext(ctx, query, generationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	var states []models.VideoState
	for rows.Next() {
		var s models.Scene
		var position int
		var stateJSON []byte
		err := rows.Scan(
			&s.ID, &s.GenerationID, &position, &s.ParentID, &s.Image, &s.MimeType,
			&s.Prompt, &s.Error, &s.PrevImage, &s.PrevMimeType, &stateJSON, &s.CreatedAt,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan scene: %w", err)
		}

		state := models.NewVideoState()
		if len(stateJSON) > 0 {
			if err := json.Unmarshal(stateJSON, &state); err != nil {
				return nil, nil, fmt.Errorf("failed to decode video state: %w", err)
			}
		}

		scenes = append(scenes, s)
		states = append(states, state)
	}

	return scenes, states, nil
}

// ReplaceScenes rewrites the whole scene sequence for a generation in one
// transaction. Structural edits (splices, cascade deletes) are computed on
// the in-memory aggregate and persisted wholesale so positions and the
// scene/state alignment can never drift.
func (db *DB) ReplaceScenes(ctx context.Context, g *models.Generation) error {
	if len(g.Scenes) != len(g.VideoStates) {
		return fmt.Errorf("scene/state count mismatch: %d vs %d", len(g.Scenes), len(g.VideoStates))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE generation_id = $1`, g.ID); err != nil {
		return fmt.Errorf("failed to clear scenes: %w", err)
	}

	insert := `
		INSERT INTO scenes (
			id, generation_id, position, parent_id, image, mime_type, prompt,
			error_message, prev_image, prev_mime_type, video_state, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	for i, s := range g.Scenes {
		stateJSON, err := json.Marshal(g.VideoStates[i])
		if err != nil {
			return fmt.Errorf("failed to encode video state: %w", err)
		}

		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		_, err = tx.ExecContext(
			ctx, insert,
			s.ID, g.ID, i, s.ParentID, s.Image, s.MimeType, s.Prompt,
			s.Error, s.PrevImage, s.PrevMimeType, stateJSON, createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert scene %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE generations SET updated_at = $1 WHERE id = $2`, time.Now(), g.ID); err != nil {
		return fmt.Errorf("failed to touch generation: %w", err)
	}

	return tx.Commit()
}

// UpdateScene persists an in-place change to one scene (image edit, undo,
// error annotation). Position and parentage are untouched.
func (db *DB) UpdateScene(ctx context.Context, s *models.Scene) error {
	query := `
		UPDATE scenes
		SET image = $1, mime_type = $2, prompt = $3, error_message = $4,
		    prev_image = $5, prev_mime_type = $6
		WHERE id = $7
	`
	_, err := db.ExecContext(
		ctx, query,
		s.Image, s.MimeType, s.Prompt, s.Error, s.PrevImage, s.PrevMimeType, s.ID,
	)
	return err
}

// UpdateVideoState persists one scene's video workflow state.
func (db *DB) UpdateVideoState(ctx context.Context, sceneID uuid.UUID, state models.VideoState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode video state: %w", err)
	}

	_, err = db.ExecContext(ctx, `UPDATE scenes SET video_state = $1 WHERE id = $2`, stateJSON, sceneID)
	return err
}
