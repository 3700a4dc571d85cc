package indexstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Khandelwalgov/AskPro/internal/models"
	"github.com/Khandelwalgov/AskPro/internal/vector"
)

// Index is a loaded per-file index: the file's chunks and a vector index over
// their embeddings. It must be closed after use.
type Index struct {
	UserID    string
	Filename  string
	CreatedAt time.Time

	chunks  []models.Chunk
	byID    map[string]int
	vectors vector.VectorIndex

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

func newIndex(userID string, meta artifactMeta, vectors vector.VectorIndex) *Index {
	byID := make(map[string]int, len(meta.Chunks))
	for i, ch := range meta.Chunks {
		byID[ch.ID] = i
	}
	return &Index{
		UserID:    userID,
		Filename:  meta.Filename,
		CreatedAt: meta.CreatedAt,
		chunks:    meta.Chunks,
		byID:      byID,
		vectors:   vectors,
	}
}

// Search returns up to k chunks nearest to query, ordered by ascending distance.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]*models.SearchResult, error) {
	hits, err := idx.vectors.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", idx.Filename, err)
	}
	results := make([]*models.SearchResult, 0, len(hits))
	for _, h := range hits {
		i, ok := idx.byID[h.ID]
		if !ok {
			continue
		}
		ch := idx.chunks[i]
		results = append(results, &models.SearchResult{
			Text:     ch.Text,
			Score:    h.Score,
			Filename: idx.Filename,
			ChunkID:  ch.ID,
			Position: ch.Position,
		})
	}
	return results, nil
}

// Chunks returns the indexed chunks in source order.
func (idx *Index) Chunks() []models.Chunk {
	return idx.chunks
}

// Size returns the number of indexed chunks.
func (idx *Index) Size() int {
	return len(idx.chunks)
}

// Dimensions returns the embedding dimension of the index.
func (idx *Index) Dimensions() int {
	return idx.vectors.Dimensions()
}

// Close releases the vector index. It is safe to call more than once.
func (idx *Index) Close() error {
	idx.closeOnce.Do(func() {
		idx.closeErr = idx.vectors.Close()
		idx.closed.Store(true)
	})
	return idx.closeErr
}

// Closed reports whether Close has been called.
func (idx *Index) Closed() bool {
	return idx.closed.Load()
}
