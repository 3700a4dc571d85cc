package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Khandelwalgov/AskPro/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps pragmas in effect and serializes catalog writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		user_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		status TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		dimensions INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		source_size INTEGER NOT NULL DEFAULT 0,
		source_mtime INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, filename)
	);

	CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertFile inserts or replaces the record for (UserID, Filename).
// CreatedAt is kept from the first insert; UpdatedAt is set to now.
func (s *SQLiteCatalog) UpsertFile(ctx context.Context, rec *models.FileRecord) error {
	if rec.UserID == "" || rec.Filename == "" {
		return fmt.Errorf("user id and filename are required")
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (user_id, filename, status, chunk_count, dimensions, error,
			source_size, source_mtime, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, filename) DO UPDATE SET
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			dimensions = excluded.dimensions,
			error = excluded.error,
			source_size = excluded.source_size,
			source_mtime = excluded.source_mtime,
			updated_at = excluded.updated_at`,
		rec.UserID, rec.Filename, string(rec.Status), rec.ChunkCount, rec.Dimensions, rec.Error,
		rec.SourceSize, rec.SourceMtime, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	return nil
}

const fileColumns = `user_id, filename, status, chunk_count, dimensions, error,
	source_size, source_mtime, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.FileRecord, error) {
	var rec models.FileRecord
	var status string
	var created, updated int64
	if err := row.Scan(&rec.UserID, &rec.Filename, &status, &rec.ChunkCount, &rec.Dimensions,
		&rec.Error, &rec.SourceSize, &rec.SourceMtime, &created, &updated); err != nil {
		return nil, err
	}
	rec.Status = models.FileStatus(status)
	rec.CreatedAt = time.Unix(0, created)
	rec.UpdatedAt = time.Unix(0, updated)
	return &rec, nil
}

// GetFile returns the record for (userID, filename) or ErrFileNotFound.
func (s *SQLiteCatalog) GetFile(ctx context.Context, userID, filename string) (*models.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? AND filename = ?`,
		userID, filename,
	)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFiles returns every record for userID ordered by filename.
func (s *SQLiteCatalog) ListFiles(ctx context.Context, userID string) ([]*models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY filename`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteFile removes the record for (userID, filename). Deleting a missing
// record is not an error.
func (s *SQLiteCatalog) DeleteFile(ctx context.Context, userID, filename string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE user_id = ? AND filename = ?`, userID, filename)
	return err
}

// CountFiles returns the number of catalogued files across all users.
func (s *SQLiteCatalog) CountFiles(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

// CountChunks returns the total chunk count of indexed files.
func (s *SQLiteCatalog) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(chunk_count), 0) FROM files WHERE status = ?`,
		string(models.FileStatusIndexed),
	).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

var _ Catalog = (*SQLiteCatalog)(nil)
