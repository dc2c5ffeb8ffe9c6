package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB is the shared database handle, set by Init
var DB *sql.DB

// Init opens the PostgreSQL connection pool
func Init(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is empty")
	}

	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = conn
	return nil
}

// Migrate creates the tables if they do not exist yet
func Migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS transcription_jobs (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			filename TEXT NOT NULL,
			file_size_bytes BIGINT NOT NULL DEFAULT 0,
			duration_seconds DOUBLE PRECISION,
			status TEXT NOT NULL,
			tier TEXT NOT NULL,
			usage_cost INTEGER NOT NULL DEFAULT 1,
			error_message TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON transcription_jobs (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user_filename ON transcription_jobs (user_id, filename)`,
		`CREATE TABLE IF NOT EXISTS tier_limits (
			tier TEXT PRIMARY KEY,
			monthly_limit INTEGER NOT NULL,
			max_file_size_mb INTEGER NOT NULL,
			max_duration_minutes INTEGER NOT NULL,
			allow_summarization BOOLEAN NOT NULL DEFAULT FALSE,
			allow_translation BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	}
	for _, stmt := range statements {
		if _, err := DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
