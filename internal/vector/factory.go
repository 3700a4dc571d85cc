package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// IndexType names a VectorIndex implementation.
type IndexType string

const (
	// IndexTypeMemory is the exact linear-scan MemoryIndex.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS is a FAISS IndexFlatL2; needs -tags=faiss and cgo.
	IndexTypeFAISS IndexType = "faiss"
)

// ErrUnknownIndexType is returned for an index type other than memory or faiss.
var ErrUnknownIndexType = errors.New("unknown index type")

// NewVectorIndex creates an empty index. An empty type means memory.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case "", IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	}
	return nil, fmt.Errorf("%w: %q (supported: memory, faiss)", ErrUnknownIndexType, indexType)
}

// Build creates an index and loads ids and vectors into it. On failure the
// partially built index is closed.
func Build(ctx context.Context, indexType string, dimensions int, ids []string, vectors [][]float32) (VectorIndex, error) {
	idx, err := NewVectorIndex(indexType, dimensions)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, ids, vectors); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

var faissAvailable = sync.OnceValue(func() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
})

// IsFAISSAvailable reports whether this binary was built with FAISS support.
func IsFAISSAvailable() bool {
	return faissAvailable()
}
