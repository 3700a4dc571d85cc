// Package indexstore persists one vector index per (user, file) and loads,
// lists and deletes them. Artifacts are replaced atomically, so readers never
// observe a partially written index.
package indexstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Khandelwalgov/AskPro/internal/embedding"
	"github.com/Khandelwalgov/AskPro/internal/fileid"
	"github.com/Khandelwalgov/AskPro/internal/models"
	"github.com/Khandelwalgov/AskPro/internal/vector"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Index store errors.
var (
	ErrIndexNotFound = errors.New("index not found")
	ErrIndexCorrupt  = errors.New("index corrupt")
	ErrInvalidKey    = fileid.ErrInvalidKey
	ErrNoChunks      = errors.New("no chunks to index")
)

const (
	defaultBatchSize = 32
	tempPrefix       = ".tmp-"
)

// Store manages index artifacts under a root directory laid out as
// <root>/<user dir>/<file name>, see package fileid.
type Store struct {
	root      string
	indexType string
	batchSize int
	logger    *zap.Logger
	locks     *KeyedMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIndexType selects the in-memory vector index used for loaded artifacts ("memory" or "faiss").
func WithIndexType(indexType string) Option {
	return func(s *Store) { s.indexType = indexType }
}

// WithBatchSize sets how many chunks are embedded per EmbedBatch call.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a store rooted at root. The directory is created if needed.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("index root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create index root: %w", err)
	}
	s := &Store{
		root:      root,
		indexType: string(vector.IndexTypeMemory),
		batchSize: defaultBatchSize,
		logger:    zap.NewNop(),
		locks:     NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) userDir(userID string) (string, error) {
	dir, err := fileid.UserDir(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, dir), nil
}

func (s *Store) path(userID, filename string) (dir, path string, err error) {
	dir, err = s.userDir(userID)
	if err != nil {
		return "", "", err
	}
	name, err := fileid.FileName(filename)
	if err != nil {
		return "", "", err
	}
	return dir, filepath.Join(dir, name), nil
}

// Create embeds chunks, persists the index for (userID, filename) and returns
// it loaded. An existing index for the same file is replaced only once the new
// one is fully written; on failure the previous index stays intact.
func (s *Store) Create(ctx context.Context, userID, filename string, chunks []models.Chunk, emb embedding.Embedder) (*Index, error) {
	dir, path, err := s.path(userID, filename)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	vecs, err := s.embedChunks(ctx, chunks, emb)
	if err != nil {
		return nil, err
	}
	dims := emb.Dimensions()

	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	vi, err := vector.Build(ctx, s.indexType, dims, ids, vecs)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}

	meta := artifactMeta{Filename: filename, CreatedAt: time.Now().UTC(), Chunks: chunks}
	art := &artifact{meta: meta, dimensions: dims, vectors: vecs}

	unlock := s.locks.Lock(path)
	defer unlock()
	if err := ctx.Err(); err != nil {
		_ = vi.Close()
		return nil, err
	}
	write := func(w io.Writer) error { return encodeArtifact(w, art) }
	if err := s.writeAtomic(dir, path, write); err != nil {
		_ = vi.Close()
		return nil, err
	}

	s.logger.Debug("index created",
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", dims))
	return newIndex(userID, meta, vi), nil
}

func (s *Store) embedChunks(ctx context.Context, chunks []models.Chunk, emb embedding.Embedder) ([][]float32, error) {
	dims := emb.Dimensions()
	if dims <= 0 {
		return nil, fmt.Errorf("%w: embedder reports %d dimensions", embedding.ErrEmbeddingFailed, dims)
	}
	vecs := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+s.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}
		batch, err := emb.EmbedBatch(ctx, texts)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, embedding.ErrEmbeddingFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", embedding.ErrEmbeddingFailed, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", embedding.ErrEmbeddingFailed, len(batch), len(texts))
		}
		for i, v := range batch {
			if len(v) != dims {
				return nil, fmt.Errorf("%w: chunk %d has dimension %d, expected %d",
					embedding.ErrEmbeddingFailed, start+i, len(v), dims)
			}
		}
		vecs = append(vecs, batch...)
	}
	return vecs, nil
}

// writeAtomic streams write into a temp file in dir, syncs it and renames it over path.
func (s *Store) writeAtomic(dir, path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}
	tmp := filepath.Join(dir, tempPrefix+uuid.New().String())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	if err = write(w); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename index: %w", err)
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Load reads the index for (userID, filename). It returns ErrIndexNotFound if
// no artifact exists and ErrIndexCorrupt if the artifact cannot be decoded.
// The caller must Close the returned index.
func (s *Store) Load(ctx context.Context, userID, filename string) (*Index, error) {
	_, path, err := s.path(userID, filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, filename)
		}
		return nil, fmt.Errorf("read index %s: %w", filename, err)
	}
	art, err := decodeArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIndexCorrupt, filename, err)
	}
	if art.meta.Filename != filename {
		return nil, fmt.Errorf("%w: %s: artifact belongs to %q", ErrIndexCorrupt, filename, art.meta.Filename)
	}
	ids := make([]string, len(art.meta.Chunks))
	for i, ch := range art.meta.Chunks {
		ids[i] = ch.ID
	}
	vi, err := vector.Build(ctx, s.indexType, art.dimensions, ids, art.vectors)
	if err != nil {
		return nil, fmt.Errorf("build vector index for %s: %w", filename, err)
	}
	return newIndex(userID, art.meta, vi), nil
}

// WithIndex loads the index for (userID, filename), calls fn and closes the
// index on every exit path.
func (s *Store) WithIndex(ctx context.Context, userID, filename string, fn func(*Index) error) error {
	idx, err := s.Load(ctx, userID, filename)
	if err != nil {
		return err
	}
	defer idx.Close()
	return fn(idx)
}

// ListAll returns the filenames of every persisted index for userID, sorted.
// A user with no indexes gets an empty list.
func (s *Store) ListAll(ctx context.Context, userID string) ([]string, error) {
	dir, err := s.userDir(userID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if name, ok := fileid.ParseFileName(e.Name()); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether an index is persisted for (userID, filename).
func (s *Store) Exists(userID, filename string) (bool, error) {
	_, path, err := s.path(userID, filename)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Snapshot holds the persisted bytes of one index, or records that none
// existed, so a later replacement can be undone with Restore.
type Snapshot struct {
	userID   string
	filename string
	data     []byte
	existed  bool
}

// Existed reports whether an index was persisted when the snapshot was taken.
func (sn *Snapshot) Existed() bool { return sn.existed }

// Snapshot captures the current artifact for (userID, filename).
func (s *Store) Snapshot(userID, filename string) (*Snapshot, error) {
	_, path, err := s.path(userID, filename)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(path)
	defer unlock()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &Snapshot{userID: userID, filename: filename}, nil
	case err != nil:
		return nil, fmt.Errorf("snapshot index %s: %w", filename, err)
	}
	return &Snapshot{userID: userID, filename: filename, data: data, existed: true}, nil
}

// Restore puts the index back to the state captured by sn: the old artifact
// is atomically written back, or the index is removed if none existed.
func (s *Store) Restore(ctx context.Context, sn *Snapshot) error {
	if !sn.existed {
		return s.Delete(ctx, sn.userID, sn.filename)
	}
	dir, path, err := s.path(sn.userID, sn.filename)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(path)
	defer unlock()
	write := func(w io.Writer) error {
		_, err := w.Write(sn.data)
		return err
	}
	if err := s.writeAtomic(dir, path, write); err != nil {
		return fmt.Errorf("restore index %s: %w", sn.filename, err)
	}
	s.logger.Debug("index restored", zap.String("filename", sn.filename))
	return nil
}

// Delete removes the index for (userID, filename). Deleting a missing index is not an error.
func (s *Store) Delete(ctx context.Context, userID, filename string) error {
	_, path, err := s.path(userID, filename)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(path)
	defer unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete index %s: %w", filename, err)
	}
	s.logger.Debug("index deleted", zap.String("filename", filename))
	return nil
}

// CleanupTemp removes temp files left behind by interrupted writes and returns
// the number removed. It must not run concurrently with Create.
func (s *Store) CleanupTemp() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", tempPrefix+"*"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("removed stale temp files", zap.Int("count", removed))
	}
	return removed, nil
}
