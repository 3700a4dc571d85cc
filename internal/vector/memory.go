package vector

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an exact index that scans every vector on each search.
// Vectors are stored back to back in one slice; row i spans
// data[i*dimensions : (i+1)*dimensions].
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	ids        []string
	data       []float32
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

func (m *MemoryIndex) Type() string { return string(IndexTypeMemory) }

func (m *MemoryIndex) Dimensions() int { return m.dimensions }

// Add appends vectors. Nothing is added if any vector has the wrong dimension.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != m.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, ids...)
	m.data = grow(m.data, len(vectors)*m.dimensions)
	for _, v := range vectors {
		m.data = append(m.data, v...)
	}
	return nil
}

func grow(s []float32, n int) []float32 {
	if cap(s)-len(s) >= n {
		return s
	}
	out := make([]float32, len(s), len(s)+n)
	copy(out, s)
	return out
}

func (m *MemoryIndex) row(i int) []float32 {
	return m.data[i*m.dimensions : (i+1)*m.dimensions]
}

// Search returns up to k nearest vectors by ascending squared L2 distance.
// Ties are broken by insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	k = min(k, len(m.ids))

	h := make(worstFirst, 0, k)
	for i := range m.ids {
		c := candidate{row: i, dist: SquaredL2(query, m.row(i))}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		if c.before(h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	sort.Slice(h, func(i, j int) bool { return h[i].before(h[j]) })

	out := make([]*VectorResult, len(h))
	for i, c := range h {
		out[i] = &VectorResult{ID: m.ids[c.row], Score: c.dist}
	}
	return out, nil
}

// Remove drops every vector whose ID is in ids.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := 0
	for i, id := range m.ids {
		if _, ok := drop[id]; ok {
			continue
		}
		if kept != i {
			m.ids[kept] = id
			copy(m.data[kept*m.dimensions:], m.row(i))
		}
		kept++
	}
	m.ids = m.ids[:kept]
	m.data = m.data[:kept*m.dimensions]
	return nil
}

func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close releases the stored vectors.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids, m.data = nil, nil
	return nil
}

type candidate struct {
	row  int
	dist float64
}

func (c candidate) before(o candidate) bool {
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	return c.row < o.row
}

// worstFirst is a max-heap on (dist, row); its root is the candidate to evict.
type worstFirst []candidate

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return h[j].before(h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *worstFirst) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}
