// Package vector holds the nearest-neighbour indexes that back a loaded
// per-file index artifact.
package vector

import "context"

// VectorIndex stores chunk vectors and answers k-nearest queries. Scores are
// squared Euclidean distances, so lower is closer.
type VectorIndex interface {
	Type() string
	Dimensions() int
	Size() int
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Close() error
}

// VectorResult is one hit; ID is the chunk ID.
type VectorResult struct {
	ID    string
	Score float64
}
