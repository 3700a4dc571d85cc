// Package storage defines the file catalog that tracks each user's uploads
// and the status of their per-file indexes.
package storage

import (
	"context"
	"errors"

	"github.com/Khandelwalgov/AskPro/internal/models"
)

// ErrFileNotFound is returned when the catalog has no record for a file.
var ErrFileNotFound = errors.New("file not found in catalog")

// Catalog persists file records keyed by (user, filename).
type Catalog interface {
	UpsertFile(ctx context.Context, rec *models.FileRecord) error
	GetFile(ctx context.Context, userID, filename string) (*models.FileRecord, error)
	ListFiles(ctx context.Context, userID string) ([]*models.FileRecord, error)
	DeleteFile(ctx context.Context, userID, filename string) error

	// Stats
	CountFiles(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
