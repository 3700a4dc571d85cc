package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Khandelwalgov/AskPro/internal/config"
	"github.com/Khandelwalgov/AskPro/internal/models"
	"github.com/Khandelwalgov/AskPro/internal/storage"
	"go.uber.org/zap"
)

func testFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("k", 0, "")
	fs.String("output", "text", "")
	fs.Bool("debug", false, "")
	return fs
}

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"alice", "refund policy", "-k", "3"},
			expected: []string{"-k", "3", "alice", "refund policy"},
		},
		{
			name:     "flags first returns same order",
			args:     []string{"-k", "3", "alice", "refund"},
			expected: []string{"-k", "3", "alice", "refund"},
		},
		{
			name:     "interleaved flags keep positional order",
			args:     []string{"alice", "-output", "json", "what", "is", "-k=2", "x"},
			expected: []string{"-output", "json", "-k=2", "alice", "what", "is", "x"},
		},
		{
			name:     "bool flag takes no value",
			args:     []string{"alice", "-debug", "question"},
			expected: []string{"-debug", "alice", "question"},
		},
		{
			name:     "double dash ends flags",
			args:     []string{"alice", "--", "-k", "is a word"},
			expected: []string{"alice", "-k", "is a word"},
		},
		{
			name:     "empty args",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(testFlagSet(), tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReorderArgs_parses(t *testing.T) {
	fs := testFlagSet()
	if err := fs.Parse(reorderArgs(fs, []string{"bob", "how", "-k", "7", "does", "it", "work"})); err != nil {
		t.Fatal(err)
	}
	if got := fs.Lookup("k").Value.String(); got != "7" {
		t.Errorf("k = %s, want 7", got)
	}
	if fs.Arg(0) != "bob" || joinQuery(fs.Args()[1:]) != "how does it work" {
		t.Errorf("positional = %v", fs.Args())
	}
}

func TestJoinQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"refund"}, "refund"},
		{"multiple words", []string{"refund", "policy"}, "refund policy"},
		{"quoted phrase", []string{"refund policy"}, "refund policy"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinQuery(tt.args); got != tt.expected {
				t.Errorf("joinQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_defaultsWhenNothingExists(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty for built-in defaults", resolved)
	}
	if cfg.Retrieval.DefaultK != 10 || cfg.Embedding.Provider != "mock" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	content := `
retrieval:
  default_k: 5
  max_k: 20
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Retrieval.DefaultK != 5 || cfg.Retrieval.MaxK != 20 {
		t.Errorf("unexpected retrieval config: %+v", cfg.Retrieval)
	}
}

func TestLoadConfig_explicitMissingFails(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestInitializeComponents_endToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.IndexRoot = filepath.Join(dir, "indexes")
	cfg.Storage.DatabasePath = filepath.Join(dir, "askpro.db")
	cfg.Embedding.Dimensions = 16
	cfg.Chunking.ChunkSize = 60
	cfg.Chunking.ChunkOverlap = 10

	c, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	path := filepath.Join(dir, "handbook.txt")
	text := "Refunds are issued within thirty days of purchase.\n\nShipping is free for orders over fifty dollars."
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		t.Fatal(err)
	}
	if err := c.Indexer.IngestFile(ctx, "alice", "", path, nil); err != nil {
		t.Fatal(err)
	}

	rec, err := c.Catalog.GetFile(ctx, "alice", "handbook.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.FileStatusIndexed || rec.Dimensions != 16 {
		t.Errorf("record = %+v", rec)
	}

	resp, err := c.Engine.Query(ctx, "alice", "Refunds are issued within thirty days of purchase.", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Filename != "handbook.txt" {
		t.Fatalf("results = %+v", resp.Results)
	}

	resp, err = c.Engine.Query(ctx, "bob", "refunds", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("bob must not see alice's files: %+v", resp.Results)
	}

	if err := c.Indexer.Delete(ctx, "alice", "handbook.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Catalog.GetFile(ctx, "alice", "handbook.txt"); !errors.Is(err, storage.ErrFileNotFound) {
		t.Errorf("record should be deleted, got %v", err)
	}
}

func TestInitializeComponents_faissFallsBackToMemory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.IndexRoot = filepath.Join(dir, "indexes")
	cfg.Storage.DatabasePath = filepath.Join(dir, "askpro.db")
	cfg.Vector.IndexType = "faiss"

	c, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.IndexType != "memory" && c.IndexType != "faiss" {
		t.Errorf("IndexType = %q", c.IndexType)
	}
}
