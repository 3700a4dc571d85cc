// Package search answers a user's query by searching every one of their
// per-file indexes in parallel and merging the hits.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Khandelwalgov/AskPro/internal/config"
	"github.com/Khandelwalgov/AskPro/internal/embedding"
	"github.com/Khandelwalgov/AskPro/internal/indexstore"
	"github.com/Khandelwalgov/AskPro/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAllIndexesUnavailable is returned when a user has indexes but none of
// them could be loaded or searched.
var ErrAllIndexesUnavailable = errors.New("all indexes unavailable")

// IndexSource enumerates and loads a user's per-file indexes.
type IndexSource interface {
	ListAll(ctx context.Context, userID string) ([]string, error)
	Load(ctx context.Context, userID, filename string) (*indexstore.Index, error)
}

// Engine runs retrieval queries.
type Engine struct {
	source   IndexSource
	embedder embedding.Embedder
	config   config.RetrievalConfig
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a retrieval engine with the given dependencies.
func NewEngine(source IndexSource, embedder embedding.Embedder, cfg config.RetrievalConfig, opts ...Option) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	e := &Engine{
		source:   source,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query returns the k passages nearest to text across all of userID's
// indexes, ordered by ascending score. Indexes that fail to load or search
// are logged and skipped; if every index fails the response is flagged and
// ErrAllIndexesUnavailable is returned with it.
func (e *Engine) Query(ctx context.Context, userID, text string, k int) (*models.QueryResponse, error) {
	startTime := time.Now()
	q := &models.Query{UserID: userID, Text: text, K: k}
	if err := ProcessQuery(q, e.config); err != nil {
		return nil, err
	}

	resp := &models.QueryResponse{Query: text, Results: []*models.SearchResult{}}

	filenames, err := e.source.ListAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	if len(filenames) == 0 {
		resp.QueryTime = time.Since(startTime).Milliseconds()
		return resp, nil
	}

	queryVec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, embedding.ErrEmbeddingFailed) {
			err = fmt.Errorf("%w: %w", embedding.ErrEmbeddingFailed, err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Each worker writes only its own slot, so no locking is needed.
	lists := make([][]*models.SearchResult, len(filenames))
	failed := make([]bool, len(filenames))
	gone := make([]bool, len(filenames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, name := range filenames {
		i, name := i, name // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			results, err := e.searchOne(gctx, userID, name, queryVec, q.K)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if errors.Is(err, indexstore.ErrIndexNotFound) {
					// deleted after ListAll; treat as never listed
					gone[i] = true
					return nil
				}
				failed[i] = true
				e.logger.Warn("skipping index",
					zap.String("filename", name),
					zap.Error(err))
				return nil
			}
			lists[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, f := range failed {
		switch {
		case gone[i]:
		case f:
			resp.IndexesFailed++
		default:
			resp.IndexesSearched++
		}
	}
	resp.Results = MergeResults(lists, q.K)
	resp.QueryTime = time.Since(startTime).Milliseconds()

	e.logger.Debug("query complete",
		zap.Int("indexes", len(filenames)),
		zap.Int("failed", resp.IndexesFailed),
		zap.Int("results", len(resp.Results)),
		zap.Int64("query_time_ms", resp.QueryTime))

	if resp.IndexesFailed > 0 && resp.IndexesSearched == 0 {
		resp.AllIndexesUnavailable = true
		return resp, ErrAllIndexesUnavailable
	}
	return resp, nil
}

// searchOne loads one index, searches it and releases it before returning.
func (e *Engine) searchOne(ctx context.Context, userID, filename string, query []float32, k int) ([]*models.SearchResult, error) {
	idx, err := e.source.Load(ctx, userID, filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil {
			e.logger.Warn("close index", zap.String("filename", filename), zap.Error(cerr))
		}
	}()
	return idx.Search(ctx, query, k)
}
