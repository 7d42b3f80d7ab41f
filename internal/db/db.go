package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the sql pool. All query methods hang off this type.
type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS generations (
			id UUID PRIMARY KEY,
			idea TEXT NOT NULL,
			status TEXT NOT NULL,
			settings JSONB NOT NULL DEFAULT '{}',
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS scenes (
			id UUID PRIMARY KEY,
			generation_id UUID NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
			position INT NOT NULL,
			parent_id UUID,
			image BYTEA,
			mime_type TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL DEFAULT '',
			error_message TEXT,
			prev_image BYTEA,
			prev_mime_type TEXT NOT NULL DEFAULT '',
			video_state JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scenes_generation ON scenes(generation_id, position)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id UUID PRIMARY KEY,
			generation_id UUID NOT NULL,
			scene_id UUID,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			payload JSONB,
			error_message TEXT,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			ref_image BYTEA,
			ref_mime_type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			style_label TEXT NOT NULL DEFAULT '',
			busy BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
