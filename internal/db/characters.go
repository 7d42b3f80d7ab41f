package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/models"
)

func (db *DB) CreateCharacter(ctx context.Context, c *models.Character) error {
	query := `
		INSERT INTO characters (id, name, ref_image, ref_mime_type, description, style_label, busy)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		c.ID, c.Name, c.RefImage, c.RefMimeType, c.Description, c.StyleLabel, c.Busy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (db *DB) GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	query := `
		SELECT id, name, ref_image, ref_mime_type, description, style_label, busy, created_at, updated_at
		FROM characters
		WHERE id = $1
	`

	c := &models.Character{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.RefImage, &c.RefMimeType, &c.Description,
		&c.StyleLabel, &c.Busy, &c.CreatedAt, &c.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("character not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}

	return c, nil
}

// ListCharacters returns the full roster in creation order.
func (db *DB) ListCharacters(ctx context.Context) ([]models.Character, error) {
	query := `
		SELECT id, name, ref_image, ref_mime_type, description, style_label, busy, created_at, updated_at
		FROM characters
		ORDER BY created_at
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	var out []models.Character
	for rows.Next() {
		var c models.Character
		err := rows.Scan(
			&c.ID, &c.Name, &c.RefImage, &c.RefMimeType, &c.Description,
			&c.StyleLabel, &c.Busy, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		out = append(out, c)
	}

	return out, nil
}

func (db *DB) UpdateCharacter(ctx context.Context, c *models.Character) error {
	query := `
		UPDATE characters
		SET name = $1, ref_image = $2, ref_mime_type = $3, description = $4,
		    style_label = $5, busy = $6, updated_at = $7
		WHERE id = $8
	`
	_, err := db.ExecContext(
		ctx, query,
		c.Name, c.RefImage, c.RefMimeType, c.Description, c.StyleLabel, c.Busy,
		time.Now(), c.ID,
	)
	return err
}

func (db *DB) DeleteCharacter(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM characters WHERE id = $1`, id)
	return err
}
