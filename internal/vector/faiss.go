//go:build faiss && cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"unsafe"
)

// FAISSIndex wraps a FAISS IndexFlatL2. FAISS labels are insertion positions,
// so ids[label] maps a hit back to its chunk ID. Removed rows stay in FAISS
// and are skipped at search time.
type FAISSIndex struct {
	mu         sync.RWMutex
	index      *C.FaissIndexFlatL2
	dimensions int
	ids        []string
	removed    map[int64]struct{}
}

// NewFAISSIndex creates an empty flat L2 index.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	var index *C.FaissIndexFlatL2
	if C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dimensions)) != 0 {
		return nil, fmt.Errorf("create faiss index: %s", faissLastError())
	}
	return &FAISSIndex{index: index, dimensions: dimensions, removed: map[int64]struct{}{}}, nil
}

func faissLastError() string {
	if msg := C.faiss_get_last_error(); msg != nil {
		return C.GoString(msg)
	}
	return "unknown error"
}

func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

func (f *FAISSIndex) Dimensions() int { return f.dimensions }

func (f *FAISSIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	flat := make([]float32, 0, len(vectors)*f.dimensions)
	for i, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), f.dimensions)
		}
		flat = append(flat, v...)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index == nil {
		return fmt.Errorf("faiss index is closed")
	}
	if C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))) != 0 {
		return fmt.Errorf("add to faiss index: %s", faissLastError())
	}
	f.ids = append(f.ids, ids...)
	return nil
}

// Search returns up to k live rows by ascending squared L2 distance, ties by
// insertion order like MemoryIndex.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || f.index == nil || len(f.ids) == 0 {
		return nil, nil
	}
	// removed rows can occupy result slots, so fetch enough to skip them
	fetch := min(k+len(f.removed), len(f.ids))
	distances := make([]float32, fetch)
	labels := make([]int64, fetch)
	if C.faiss_Index_search(f.index, 1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(fetch),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	) != 0 {
		return nil, fmt.Errorf("faiss search: %s", faissLastError())
	}

	type hit struct {
		label int64
		dist  float32
	}
	hits := make([]hit, 0, fetch)
	for i, label := range labels {
		if label < 0 || int(label) >= len(f.ids) {
			continue
		}
		if _, gone := f.removed[label]; gone {
			continue
		}
		hits = append(hits, hit{label, distances[i]})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].label < hits[j].label
	})
	hits = hits[:min(k, len(hits))]

	out := make([]*VectorResult, len(hits))
	for i, h := range hits {
		out[i] = &VectorResult{ID: f.ids[h.label], Score: float64(h.dist)}
	}
	return out, nil
}

// Remove tombstones every row whose ID is in ids. A flat index cannot delete
// in place.
func (f *FAISSIndex) Remove(ctx context.Context, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for label, id := range f.ids {
		if _, ok := drop[id]; ok {
			f.removed[int64(label)] = struct{}{}
		}
	}
	return nil
}

// Size returns the number of live rows.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids) - len(f.removed)
}

func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	f.ids = nil
	f.removed = map[int64]struct{}{}
	return nil
}
