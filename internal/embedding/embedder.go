// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Embedding errors.
var (
	// ErrEmbeddingFailed wraps any provider failure while producing a vector.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// Embedder produces vector embeddings for text. Implementations must be
// deterministic for a fixed model and safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted by New.
const (
	ProviderMock   = "mock"
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
)

// Options selects and configures an embedding provider.
type Options struct {
	Provider   string
	ModelPath  string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	BatchSize  int

	// RequestsPerSecond throttles remote providers; zero means unlimited.
	RequestsPerSecond float64
}

// New creates the embedder named by opts.Provider. When CacheSize is positive
// the embedder is wrapped in an LRU cache.
func New(opts Options) (Embedder, error) {
	var (
		emb Embedder
		err error
	)
	switch opts.Provider {
	case ProviderMock, "":
		emb = NewMockEmbedder(opts.Dimensions)
	case ProviderONNX:
		emb, err = NewONNXEmbedder(opts.ModelPath, opts.Dimensions, opts.MaxTokens)
	case ProviderOpenAI:
		emb, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     opts.APIKey,
			BaseURL:    opts.BaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,

			RequestsPerSecond: opts.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("%w: %q (supported: mock, onnx, openai)", ErrUnknownProvider, opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		return NewCachedEmbedder(emb, opts.CacheSize), nil
	}
	return emb, nil
}
