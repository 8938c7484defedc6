package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/models"
)

// SQLiteHistory implements BuildHistory using SQLite.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenHistory opens or creates the history database at dbPath and
// initializes the schema. Parent directories are created if needed.
func OpenHistory(dbPath string) (*SQLiteHistory, error) {
	const op = "open build history"
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.IO(op, err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, apperr.IO(op, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, apperr.IO(op, fmt.Errorf("enable WAL: %w", err))
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, apperr.IO(op, fmt.Errorf("initialize schema: %w", err))
	}
	return &SQLiteHistory{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		mode TEXT NOT NULL,
		root TEXT,
		files INTEGER NOT NULL,
		documents INTEGER NOT NULL,
		segments INTEGER NOT NULL,
		generation INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordBuild appends rec and sets its ID. A zero StartedAt is set to now.
func (s *SQLiteHistory) RecordBuild(ctx context.Context, rec *models.BuildRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	rec.StartedAt = rec.StartedAt.UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (started_at, mode, root, files, documents, segments, generation, elapsed_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.StartedAt, rec.Mode, rec.Root, rec.Files, rec.Documents, rec.Segments,
		int64(rec.Generation), rec.ElapsedMS, rec.Error,
	)
	if err != nil {
		return apperr.IO("record build", err)
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// RecentBuilds returns up to limit builds, newest first.
func (s *SQLiteHistory) RecentBuilds(ctx context.Context, limit int) ([]*models.BuildRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, mode, root, files, documents, segments, generation, elapsed_ms, error
		 FROM builds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.IO("list builds", err)
	}
	defer rows.Close()

	var out []*models.BuildRecord
	for rows.Next() {
		var (
			rec  models.BuildRecord
			gen  int64
			root sql.NullString
			msg  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.Mode, &root, &rec.Files, &rec.Documents,
			&rec.Segments, &gen, &rec.ElapsedMS, &msg); err != nil {
			return nil, apperr.IO("list builds", err)
		}
		rec.Generation = uint64(gen)
		rec.Root = root.String
		rec.Error = msg.String
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
