package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/Khandelwalgov/AskPro/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	defaultOpenAIModel     = "text-embedding-3-small"
	defaultOpenAIBatchSize = 64
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a local OpenAI-compatible server.
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Retry      RetryConfig

	// RequestsPerSecond throttles API requests; zero means unlimited.
	RequestsPerSecond float64
}

// OpenAIEmbedder requests embeddings from the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	retry      RetryConfig
	limiter    *rate.Limiter
}

// NewOpenAIEmbedder creates an OpenAI embedder. When cfg.Dimensions is zero it
// is inferred from the model name.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai embedder requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if openai.EmbeddingModel(cfg.Model) == openai.AdaEmbeddingV2 && cfg.Dimensions > 0 && cfg.Dimensions != 1536 {
		return nil, fmt.Errorf("model %s only produces 1536 dimensions, got %d", cfg.Model, cfg.Dimensions)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
		if cfg.Model == "text-embedding-3-large" {
			cfg.Dimensions = 3072
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultOpenAIBatchSize
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		retry:      cfg.Retry,
		limiter:    limiter,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request batches of at most batchSize, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := retryWithBackoff(ctx, e.retry, func() ([][]float32, error) {
			return e.request(ctx, texts[start:end])
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: openai: %w", ErrEmbeddingFailed, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	// ada-002 has a fixed width and rejects the dimensions parameter.
	if openai.EmbeddingModel(e.model) != openai.AdaEmbeddingV2 {
		req.Dimensions = e.dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding dimension %d, expected %d", len(d.Embedding), e.dimensions)
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		utils.NormalizeL2(v)
		vecs[d.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no exclusive resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
