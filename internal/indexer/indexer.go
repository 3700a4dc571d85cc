// Package indexer turns uploaded text into per-file vector indexes: it
// normalizes and chunks the text, hands the chunks to the index store and
// keeps the file catalog in step.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Khandelwalgov/AskPro/internal/embedding"
	"github.com/Khandelwalgov/AskPro/internal/fileid"
	"github.com/Khandelwalgov/AskPro/internal/indexstore"
	"github.com/Khandelwalgov/AskPro/internal/models"
	"github.com/Khandelwalgov/AskPro/internal/storage"
	"github.com/Khandelwalgov/AskPro/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrIngestionFailed wraps every ingestion failure.
	ErrIngestionFailed = errors.New("ingestion failed")
	// ErrEmptyDocument is returned for input with no text at all.
	ErrEmptyDocument = errors.New("document is empty")
	// ErrChunkingProducedEmpty is returned when non-empty input yields no
	// chunk with visible text.
	ErrChunkingProducedEmpty = errors.New("chunking produced no chunks")
)

// Indexer ingests and deletes per-file indexes.
type Indexer struct {
	store    *indexstore.Store
	embedder embedding.Embedder
	chunker  *Chunker
	catalog  storage.Catalog // optional
	locks    *indexstore.KeyedMutex
	logger   *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// WithCatalog records every ingestion and deletion in the file catalog.
func WithCatalog(c storage.Catalog) IndexerOption {
	return func(idx *Indexer) { idx.catalog = c }
}

// NewIndexer creates an indexer. A nil chunker uses the default chunk size and overlap.
func NewIndexer(store *indexstore.Store, embedder embedding.Embedder, chunker *Chunker, opts ...IndexerOption) *Indexer {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	idx := &Indexer{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		locks:    indexstore.NewKeyedMutex(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// source describes the file an ingestion was read from, if any.
type source struct {
	size  int64
	mtime int64
}

// Ingest builds the index for (userID, filename) from text, replacing any
// previous index for the same file only once the new one is fully written.
// Every failure wraps ErrIngestionFailed.
func (idx *Indexer) Ingest(ctx context.Context, userID, filename, text string) error {
	return idx.ingest(ctx, userID, filename, text, source{})
}

func (idx *Indexer) ingest(ctx context.Context, userID, filename, text string, src source) error {
	if userID == "" {
		return fmt.Errorf("%w: %w: empty user id", ErrIngestionFailed, fileid.ErrInvalidKey)
	}
	if _, err := fileid.FileName(filename); err != nil {
		return fmt.Errorf("%w: %w", ErrIngestionFailed, err)
	}

	unlock := idx.locks.Lock(lockKey(userID, filename))
	defer unlock()

	rec := &models.FileRecord{
		UserID:      userID,
		Filename:    filename,
		Status:      models.FileStatusPending,
		SourceSize:  src.size,
		SourceMtime: src.mtime,
	}
	if err := idx.record(ctx, rec); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIngestionFailed, filename, err)
	}

	text = Preprocess(text)
	if text == "" {
		return idx.fail(ctx, rec, ErrEmptyDocument)
	}
	chunks := idx.split(filename, text)
	if len(chunks) == 0 {
		return idx.fail(ctx, rec, ErrChunkingProducedEmpty)
	}

	prev, err := idx.store.Snapshot(userID, filename)
	if err != nil {
		return idx.fail(ctx, rec, err)
	}
	built, err := idx.store.Create(ctx, userID, filename, chunks, idx.embedder)
	if err != nil {
		return idx.fail(ctx, rec, err)
	}
	dims := built.Dimensions()
	_ = built.Close()

	indexed := *rec
	indexed.Status = models.FileStatusIndexed
	indexed.ChunkCount = len(chunks)
	indexed.Dimensions = dims
	indexed.Error = ""
	if err := idx.record(ctx, &indexed); err != nil {
		// the catalog never saw the new index, so it must not stay visible
		if rerr := idx.store.Restore(context.WithoutCancel(ctx), prev); rerr != nil {
			idx.logger.Error("failed to roll back index",
				zap.String("user", userID),
				zap.String("filename", filename),
				zap.Error(rerr))
		}
		return idx.fail(ctx, rec, fmt.Errorf("record indexed file: %w", err))
	}
	idx.logger.Info("file indexed",
		zap.String("user", userID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))
	return nil
}

// split chunks text and drops chunks with no visible text.
func (idx *Indexer) split(filename, text string) []models.Chunk {
	all := idx.chunker.Split(filename, text)
	chunks := all[:0]
	for _, ch := range all {
		if utils.IsBlank(ch.Text) {
			continue
		}
		chunks = append(chunks, ch)
	}
	return chunks
}

// fail marks rec failed in the catalog and returns cause wrapped in ErrIngestionFailed.
func (idx *Indexer) fail(ctx context.Context, rec *models.FileRecord, cause error) error {
	rec.Status = models.FileStatusFailed
	rec.Error = cause.Error()
	// The caller's context may already be cancelled; the failure is still recorded.
	if err := idx.record(context.WithoutCancel(ctx), rec); err != nil {
		idx.logger.Warn("failed to record ingestion failure",
			zap.String("filename", rec.Filename), zap.Error(err))
	}
	idx.logger.Warn("ingestion failed",
		zap.String("user", rec.UserID),
		zap.String("filename", rec.Filename),
		zap.Error(cause))
	return fmt.Errorf("%w: %s: %w", ErrIngestionFailed, rec.Filename, cause)
}

func (idx *Indexer) record(ctx context.Context, rec *models.FileRecord) error {
	if idx.catalog == nil {
		return nil
	}
	return idx.catalog.UpsertFile(ctx, rec)
}

// IngestFile reads the file at path and ingests it for userID under filename,
// or under the file's base name when filename is empty. If allowedExts is
// non-empty the extension must be in the list (case-insensitive). Files already
// indexed with the same size and mtime are skipped.
func (idx *Indexer) IngestFile(ctx context.Context, userID, filename, path string, allowedExts []string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: absolute path: %w", ErrIngestionFailed, err)
	}
	if filename == "" {
		filename = filepath.Base(absPath)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return fmt.Errorf("%w: extension %q not in allowed list", ErrIngestionFailed, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("%w: stat file: %w", ErrIngestionFailed, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file: %s", ErrIngestionFailed, absPath)
	}
	src := source{size: info.Size(), mtime: info.ModTime().UnixNano()}
	if idx.shouldSkipFile(ctx, userID, filename, src) {
		idx.logger.Debug("skipping unchanged file",
			zap.String("user", userID), zap.String("path", absPath))
		return nil
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("%w: read file: %w", ErrIngestionFailed, err)
	}
	return idx.ingest(ctx, userID, filename, string(content), src)
}

// shouldSkipFile reports whether the catalog already has an indexed record
// for the file with the same size and mtime and the index is still on disk.
func (idx *Indexer) shouldSkipFile(ctx context.Context, userID, filename string, src source) bool {
	if idx.catalog == nil {
		return false
	}
	rec, err := idx.catalog.GetFile(ctx, userID, filename)
	if err != nil {
		return false
	}
	if rec.Status != models.FileStatusIndexed || rec.SourceSize != src.size || rec.SourceMtime != src.mtime {
		return false
	}
	ok, err := idx.store.Exists(userID, filename)
	return err == nil && ok
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is in allowedExts (all files when empty). Filenames are the
// slash-separated paths relative to dir. Returns the number of files ingested
// and the first error encountered.
func (idx *Indexer) IngestDirectory(ctx context.Context, userID, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			return relErr
		}
		if ingestErr := idx.IngestFile(ctx, userID, filepath.ToSlash(rel), path, allowedExts); ingestErr != nil {
			return ingestErr
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// Delete removes the index and catalog record for (userID, filename).
// Deleting a file that was never ingested is not an error.
func (idx *Indexer) Delete(ctx context.Context, userID, filename string) error {
	unlock := idx.locks.Lock(lockKey(userID, filename))
	defer unlock()

	if err := idx.store.Delete(ctx, userID, filename); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	if idx.catalog != nil {
		if err := idx.catalog.DeleteFile(ctx, userID, filename); err != nil {
			return fmt.Errorf("delete catalog record: %w", err)
		}
	}
	idx.logger.Debug("file deleted", zap.String("user", userID), zap.String("filename", filename))
	return nil
}

func lockKey(userID, filename string) string {
	return userID + "\x00" + filename
}
