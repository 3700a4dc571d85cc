// Package main is the askpro CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Khandelwalgov/AskPro/internal/cli"
	"github.com/Khandelwalgov/AskPro/internal/config"
	"github.com/Khandelwalgov/AskPro/internal/embedding"
	"github.com/Khandelwalgov/AskPro/internal/indexer"
	"github.com/Khandelwalgov/AskPro/internal/indexstore"
	"github.com/Khandelwalgov/AskPro/internal/search"
	"github.com/Khandelwalgov/AskPro/internal/storage"
	"github.com/Khandelwalgov/AskPro/internal/vector"
	"github.com/Khandelwalgov/AskPro/internal/watcher"
	"github.com/Khandelwalgov/AskPro/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/askpro/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, and a missing default file yields
// the built-in defaults. Returns the config and the path that was loaded
// (empty when defaults were used).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env may carry the embedding API key
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "delete":
		runDelete()
	case "list":
		runList()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("askpro version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// reorderArgs moves flags (and their values) ahead of positional arguments so
// that flag.Parse sees them wherever they were typed. The flag package stops at
// the first non-flag argument, so "query alice what is x -k 3" would otherwise
// leave -k unparsed. Everything after "--" stays positional.
func reorderArgs(fs *flag.FlagSet, args []string) []string {
	flags := make([]string, 0, len(args))
	positional := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		f := fs.Lookup(name)
		if f == nil || isBoolFlag(f) {
			continue
		}
		if i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return append(flags, positional...)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// joinQuery joins positional args with spaces so multi-word queries work with
// or without shell quoting.
func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// setup loads config, creates the logger and initializes components.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	name := fs.String("name", "", "filename to store the upload under (default: base name of the file)")
	_ = fs.Parse(reorderArgs(fs, os.Args[2:]))

	if fs.NArg() < 2 {
		fmt.Println("Usage: askpro ingest [flags] <user> <file-or-directory>")
		os.Exit(1)
	}
	userID, path := fs.Arg(0), fs.Arg(1)

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Indexer.IngestDirectory(ctx, userID, path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingesting directory failed after %d file(s): %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter
	if err := components.Indexer.IngestFile(ctx, userID, *name, path, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	filename := *name
	if filename == "" {
		filename = filepath.Base(path)
	}
	fmt.Printf("File indexed: %s\n", filename)
}

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: askpro query [flags] <user> <question...>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are passages from all of the user's files, nearest first.
The score is a squared L2 distance: lower means more similar.

Examples:
  askpro query alice what is the refund policy
  askpro query -k 3 alice "refund policy"
  askpro query -output json alice refund policy
`)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	k := fs.Int("k", 0, "number of passages to return (default from config)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(reorderArgs(fs, os.Args[2:]))

	if fs.NArg() < 2 {
		printQueryUsage(fs)
		os.Exit(1)
	}
	userID := fs.Arg(0)
	question := joinQuery(fs.Args()[1:])
	if question == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	response, err := components.Engine.Query(context.Background(), userID, question, *k)
	if err != nil && !errors.Is(err, search.ErrAllIndexesUnavailable) {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if writeErr := cli.WriteQueryResults(os.Stdout, response, format); writeErr != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", writeErr)
		os.Exit(1)
	}
	if err != nil {
		os.Exit(2)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(reorderArgs(fs, os.Args[2:]))

	if fs.NArg() < 2 {
		fmt.Println("Usage: askpro delete [flags] <user> <filename>")
		os.Exit(1)
	}
	userID, filename := fs.Arg(0), fs.Arg(1)

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	// Only files the catalog lists for this user may be deleted.
	if _, err := components.Catalog.GetFile(ctx, userID, filename); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			fmt.Fprintf(os.Stderr, "No file %q for user %q\n", filename, userID)
		} else {
			fmt.Fprintf(os.Stderr, "Catalog lookup failed: %v\n", err)
		}
		os.Exit(1)
	}
	if err := components.Indexer.Delete(ctx, userID, filename); err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("File deleted: %s\n", filename)
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(reorderArgs(fs, os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: askpro list [flags] <user>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	records, err := components.Catalog.ListFiles(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteFileList(os.Stdout, records, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// statusConfig holds configuration info reported by status.
type statusConfig struct {
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	ChunkSize           int    `json:"chunk_size"`
	ChunkOverlap        int    `json:"chunk_overlap"`
	VectorIndexType     string `json:"vector_index_type"`
	FAISSAvailable      bool   `json:"faiss_available"`
	SQLiteDriver        string `json:"sqlite_driver"`
	IndexRoot           string `json:"index_root"`
	DatabasePath        string `json:"database_path"`
}

type statusReport struct {
	Files          int64         `json:"files"`
	Chunks         int64         `json:"chunks"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
	DiskFiles      *int          `json:"disk_files,omitempty"`
	Config         *statusConfig `json:"config"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	fileCount, err := components.Catalog.CountFiles(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count files failed: %v\n", err)
		os.Exit(1)
	}
	chunkCount, err := components.Catalog.CountChunks(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
		os.Exit(1)
	}
	status := statusReport{
		Files:  fileCount,
		Chunks: chunkCount,
		Config: &statusConfig{
			EmbeddingProvider:   cfg.Embedding.Provider,
			EmbeddingDimensions: components.Embedder.Dimensions(),
			ChunkSize:           cfg.Chunking.ChunkSize,
			ChunkOverlap:        cfg.Chunking.ChunkOverlap,
			VectorIndexType:     components.IndexType,
			FAISSAvailable:      vector.IsFAISSAvailable(),
			SQLiteDriver:        storage.DriverName + " (" + storage.BuildMode + ")",
			IndexRoot:           cfg.Storage.IndexRoot,
			DatabasePath:        cfg.Storage.DatabasePath,
		},
	}
	if usage, err := storage.DiskUsage(cfg.Storage.IndexRoot, cfg.Storage.DatabasePath); err == nil {
		status.DiskUsageBytes = &usage.Bytes
		status.DiskFiles = &usage.Files
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("files:              %d   # catalogued uploads, all users\n", status.Files)
		fmt.Printf("chunks:             %d   # chunks in indexed files\n", status.Chunks)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d   # indexes + catalog on disk (%d files)\n", *status.DiskUsageBytes, *status.DiskFiles)
		}
		c := status.Config
		fmt.Println()
		fmt.Println("# configuration")
		fmt.Printf("embedding_provider: %s\n", c.EmbeddingProvider)
		fmt.Printf("embedding_dims:     %d\n", c.EmbeddingDimensions)
		fmt.Printf("chunk_size:         %d\n", c.ChunkSize)
		fmt.Printf("chunk_overlap:      %d\n", c.ChunkOverlap)
		fmt.Printf("vector_index_type:  %s\n", c.VectorIndexType)
		fmt.Printf("faiss_available:    %t\n", c.FAISSAvailable)
		fmt.Printf("sqlite_driver:      %s\n", c.SQLiteDriver)
		fmt.Printf("index_root:         %s\n", c.IndexRoot)
		fmt.Printf("database_path:      %s\n", c.DatabasePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watcher events, file ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	if !cfg.Watch.Enabled {
		fmt.Fprintln(os.Stderr, "Watching is disabled; set watch.enabled: true in the config")
		os.Exit(1)
	}
	// The watcher owns ingestion while it runs, so leftovers from crashed writes can go.
	if _, err := components.Store.CleanupTemp(); err != nil {
		logger.Warn("temp file cleanup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := components.Indexer
	exts := cfg.Watch.Extensions
	w := watcher.NewWatcher(
		cfg.Watch.UploadsDir,
		exts,
		func(up watcher.Upload) {
			if err := idx.IngestFile(ctx, up.UserID, up.Filename, up.Path, exts); err != nil {
				logger.Warn("watch ingest failed",
					zap.String("user", up.UserID), zap.String("filename", up.Filename), zap.Error(err))
			}
		},
		func(up watcher.Upload) {
			if err := idx.Delete(ctx, up.UserID, up.Filename); err != nil {
				logger.Warn("watch delete failed",
					zap.String("user", up.UserID), zap.String("filename", up.Filename), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	logger.Info("watching uploads", zap.String("dir", w.Root()), zap.Strings("extensions", exts))
	w.SyncExistingFiles()

	<-ctx.Done()
	logger.Info("Shutting down...")
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists; use -force to overwrite\n", *path)
		os.Exit(1)
	}
	cfg := config.Default()
	cfg.Watch.Enabled = true
	if err := config.Save(*path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", *path)
}

// Components holds initialized services.
type Components struct {
	Catalog   storage.Catalog
	Store     *indexstore.Store
	Embedder  embedding.Embedder
	Engine    *search.Engine
	Indexer   *indexer.Indexer
	IndexType string
}

func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	embedder, err := embedding.New(embedding.Options{
		Provider:   cfg.Embedding.Provider,
		ModelPath:  cfg.Embedding.ModelPath,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey(),
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
		BatchSize:  cfg.Embedding.BatchSize,

		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	indexType := cfg.Vector.IndexType
	if indexType == "faiss" && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS not compiled in, falling back to memory index",
			zap.String("requested_type", indexType))
		indexType = "memory"
	}

	store, err := indexstore.New(cfg.Storage.IndexRoot,
		indexstore.WithLogger(logger),
		indexstore.WithIndexType(indexType),
		indexstore.WithBatchSize(cfg.Embedding.BatchSize),
	)
	if err != nil {
		_ = embedder.Close()
		_ = catalog.Close()
		return nil, fmt.Errorf("failed to initialize index store: %w", err)
	}
	logger.Debug("index store initialized",
		zap.String("root", store.Root()),
		zap.String("index_type", indexType),
		zap.String("sqlite_driver", storage.DriverName))

	var chunkOpts []indexer.ChunkerOption
	if len(cfg.Chunking.Separators) > 0 {
		chunkOpts = append(chunkOpts, indexer.WithSeparators(cfg.Chunking.Separators))
	}
	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, chunkOpts...)

	engine := search.NewEngine(store, embedder, cfg.Retrieval, search.WithLogger(logger))
	idx := indexer.NewIndexer(store, embedder, chunker,
		indexer.WithCatalog(catalog),
		indexer.WithLogger(logger),
	)

	return &Components{
		Catalog:   catalog,
		Store:     store,
		Embedder:  embedder,
		Engine:    engine,
		Indexer:   idx,
		IndexType: indexType,
	}, nil
}

func printUsage() {
	fmt.Println(`askpro - per-user document retrieval

Usage:
  askpro ingest [flags] <user> <path>     Index a text file (or every matching file in a directory)
  askpro query [flags] <user> <question>  Retrieve the passages nearest to a question
  askpro delete [flags] <user> <filename> Delete a file's index and catalog record
  askpro list [flags] <user>              List a user's files and their index status
  askpro status [flags]                   Show catalog, disk and configuration status
  askpro watch [flags]                    Watch <uploads_dir>/<user>/<file> and index changes
  askpro init [flags]                     Write a default config file
  askpro version                          Show version
  askpro help                             Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/askpro/config.yaml, or ./config.yaml when present)
  --debug            Enable debug logging

Ingest Flags:
  --name string      Filename to store the upload under (default: the file's base name)

Query Flags:
  --k int            Number of passages (default from config, capped at retrieval.max_k)
  --output string    text, compact, or json (default: text)

List/Status Flags:
  --output string    Output format (default: text)

Examples:
  askpro init
  askpro ingest alice ./handbook.txt
  askpro ingest --name policy.md alice /tmp/upload-123
  askpro query alice what is the refund policy
  askpro query --output json -k 3 alice "refund policy"
  askpro list alice
  askpro delete alice handbook.txt
  askpro watch`)
}
