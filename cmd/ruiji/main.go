// Package main is the ruiji CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/index"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
	"github.com/hyperjump/ruiji/internal/vectorstore"
	"github.com/hyperjump/ruiji/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ruiji/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
	format     string
	serverURL  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ruiji",
		Short:         "ruiji - product recommendations by embedding similarity",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path (default: ./config.yaml, then "+defaultConfigPath+")")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.format, "format", "text", "output format: text or json")
	flags.StringVar(&opts.serverURL, "server", "", "server URL; when set, commands call a running server instead of opening the index")

	root.AddCommand(
		newServerCmd(opts),
		newRecommendCmd(opts),
		newIngestCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ruiji version %s\n", version)
		},
	}
}

func (o *rootOptions) outputFormat() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(o.format)
}

// loadConfig resolves the config to use. An explicit path must load. Otherwise
// ./config.yaml is preferred (for development), then the default path, then
// built-in defaults. It returns the path actually loaded, or "" for defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	candidates := []string{defaultConfigPath}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append([]string{filepath.Join(cwd, "config.yaml")}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		cfg, err := config.Load(p)
		if err != nil {
			return nil, "", err
		}
		return cfg, p, nil
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

// setup loads config and creates the logger for a command.
func (o *rootOptions) setup() (*config.Config, string, *zap.Logger, error) {
	cfg, path, err := loadConfig(o.configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || o.debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, path, logger, nil
}

// components holds the services behind every local command.
type components struct {
	Manager  *index.Manager
	Embedder embedding.Embedder
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

func (c *components) Close() {
	if c.Manager != nil {
		_ = c.Manager.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	compression, err := vector.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return nil, err
	}
	vectors, err := vectorstore.New(cfg.Storage.DataDir,
		vectorstore.WithLogger(logger),
		vectorstore.WithIndexType(cfg.Index.Type),
		vectorstore.WithHNSWConfig(vector.HNSWConfig{
			M:              cfg.Index.HNSW.M,
			EfConstruction: cfg.Index.HNSW.EfConstruction,
			EfSearch:       cfg.Index.HNSW.EfSearch,
			Seed:           cfg.Index.HNSW.Seed,
		}),
		vectorstore.WithCompression(compression),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	metadata, err := storage.Open(cfg.Storage.MetadataBackend, cfg.Storage.DataDir, cfg.Storage.DatabasePath)
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	manager := index.NewManager(vectors, metadata, index.WithLogger(logger))

	embedder, err := embedding.New(embedding.Options{
		Provider:   cfg.Embedding.Provider,
		ModelPath:  cfg.Embedding.ModelPath,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	logger.Info("components initialized",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("index_type", vectors.IndexType()),
		zap.String("metadata_backend", cfg.Storage.MetadataBackend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	return &components{
		Manager:  manager,
		Embedder: embedder,
		Engine:   search.NewEngine(manager, embedder, &cfg.Recommend, search.WithLogger(logger)),
		Indexer:  indexer.NewIndexer(manager, embedder, indexer.WithLogger(logger)),
	}, nil
}

// openIndex initialises the manager with the embedder's dimension so persisted state
// is visible before the first request. A conflicting stored dimension is not fatal:
// requests initialise again with their own vectors.
func openIndex(ctx context.Context, c *components, logger *zap.Logger) {
	dim := c.Embedder.Dimensions()
	if dim <= 0 {
		return
	}
	if err := c.Manager.Initialize(ctx, dim); err != nil {
		logger.Warn("index not opened at embedder dimension", zap.Int("dimension", dim), zap.Error(err))
	}
}

// commandContext bounds one CLI operation.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 10*time.Minute)
}

// remoteError makes a dial failure readable.
func remoteError(op, serverURL string, err error) error {
	if errors.Is(err, cli.ErrServerNotRunning) {
		return fmt.Errorf("%s: no ruiji server at %s", op, serverURL)
	}
	return fmt.Errorf("%s: %w", op, err)
}
