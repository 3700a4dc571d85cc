package embedding

import (
	"context"
	"hash/fnv"

	"github.com/Khandelwalgov/AskPro/pkg/utils"
)

// MockEmbedder derives a unit vector from a hash of the text. Identical texts
// map to identical vectors; anything else is effectively random. Used by
// tests and the "mock" provider.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a mock embedder; non-positive dimensions default to 384.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		state = splitmix64(state)
		// top 24 bits mapped to [-1, 1)
		vec[i] = float32(state>>40)/float32(1<<23) - 1
	}
	if utils.NormalizeL2(vec) == 0 {
		vec[0] = 1
	}
	return vec, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *MockEmbedder) Dimensions() int { return e.dimensions }

func (e *MockEmbedder) Close() error { return nil }

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
