package search_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Khandelwalgov/AskPro/internal/config"
	"github.com/Khandelwalgov/AskPro/internal/embedding"
	"github.com/Khandelwalgov/AskPro/internal/indexer"
	"github.com/Khandelwalgov/AskPro/internal/indexstore"
	"github.com/Khandelwalgov/AskPro/internal/search"
	"github.com/Khandelwalgov/AskPro/internal/storage"
)

func TestIntegration_IngestThenQuery(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.IndexRoot = filepath.Join(dir, "indexes")
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer catalog.Close()

	store, err := indexstore.New(cfg.Storage.IndexRoot)
	if err != nil {
		t.Fatal(err)
	}
	embedder := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(32), 100)
	defer embedder.Close()

	idx := indexer.NewIndexer(store, embedder, indexer.NewChunker(80, 16), indexer.WithCatalog(catalog))
	engine := search.NewEngine(store, embedder, cfg.Retrieval)
	ctx := context.Background()

	docs := map[string]string{
		"ml.txt":     "Machine learning algorithms learn from data.",
		"search.txt": "Semantic search uses embeddings to find similar content.",
	}
	for name, text := range docs {
		if err := idx.Ingest(ctx, "alice", name, text); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := engine.Query(ctx, "alice", "Machine learning algorithms learn from data.", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected one result per file, got %d", len(resp.Results))
	}
	if resp.Results[0].Filename != "ml.txt" || resp.Results[0].Score > 1e-6 {
		t.Errorf("expected exact match from ml.txt first, got %+v", resp.Results[0])
	}
	if resp.Results[0].Score > resp.Results[1].Score {
		t.Error("results must be ordered by ascending score")
	}
	if resp.IndexesSearched != 2 || resp.IndexesFailed != 0 {
		t.Errorf("searched=%d failed=%d", resp.IndexesSearched, resp.IndexesFailed)
	}

	n, err := catalog.CountChunks(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountChunks = %d, %v", n, err)
	}
}
