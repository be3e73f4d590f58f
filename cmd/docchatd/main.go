// Docchatd is a multi-tenant document chat backend.
//
// The daemon stores uploaded documents, runs them through the ingestion
// pipeline (extract, chunk, embed, index), answers questions over the
// indexed content, and sweeps expired data on a retention schedule.
//
// Configuration is loaded from a YAML file with DOCCHAT_* environment
// overrides. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	docchatd
//
//	# Custom config file
//	docchatd -config /etc/docchatd/config.yaml
//
//	# Configure via environment
//	DOCCHAT_SERVER_PORT=9090 DOCCHAT_QDRANT_HOST=qdrant docchatd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/answer"
	"github.com/fyrsmithlabs/docchatd/internal/auth"
	"github.com/fyrsmithlabs/docchatd/internal/chunking"
	"github.com/fyrsmithlabs/docchatd/internal/config"
	"github.com/fyrsmithlabs/docchatd/internal/embeddings"
	"github.com/fyrsmithlabs/docchatd/internal/extract"
	"github.com/fyrsmithlabs/docchatd/internal/filestore"
	"github.com/fyrsmithlabs/docchatd/internal/httpapi"
	"github.com/fyrsmithlabs/docchatd/internal/ingest"
	"github.com/fyrsmithlabs/docchatd/internal/logging"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
	"github.com/fyrsmithlabs/docchatd/internal/retention"
	"github.com/fyrsmithlabs/docchatd/internal/retrieval"
	"github.com/fyrsmithlabs/docchatd/internal/telemetry"
	"github.com/fyrsmithlabs/docchatd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  docchatd           Start the docchatd daemon\n")
			fmt.Fprintf(os.Stderr, "  docchatd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("docchatd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the docchatd server and blocks until context cancellation.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes the logger and telemetry export
//  3. Connects to infrastructure (PostgreSQL, Qdrant, file storage)
//  4. Wires the ingestion pipeline, retriever, and answer generator
//  5. Starts the retention sweeper when enabled
//  6. Starts the HTTP server
//  7. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting docchatd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
		zap.Bool("answer_enabled", cfg.Answer.Enabled),
		zap.Bool("retention_enabled", cfg.Retention.Enabled),
		zap.Bool("telemetry_enabled", cfg.Telemetry.Enabled))

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    "docchatd",
		ServiceVersion: version,
		SampleRate:     cfg.Telemetry.SampleRate,
		MetricInterval: cfg.Telemetry.MetricInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		// Fresh context: the run context is already canceled here and
		// the final flush still has to go out.
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	svcs, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, httpapi.Deps{
		Documents: deps.metadata,
		Chat:      deps.metadata,
		Files:     deps.files,
		Pipeline:  svcs.coordinator,
		Retriever: svcs.retriever,
		Generator: svcs.generator,
		Vectors:   deps.vectors,
		Sweeper:   svcs.sweeper,
		DB:        deps.metadata,
		Auth:      svcs.verifier,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	if cfg.Retention.Enabled {
		svcs.sweeper.Start(ctx)
		defer svcs.sweeper.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// dependencies holds infrastructure clients with external connections.
type dependencies struct {
	metadata *metadata.PostgresStore
	vectors  *vectorstore.QdrantStore
	files    *filestore.Store
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.vectors != nil {
		_ = d.vectors.Close()
	}
	if d.metadata != nil {
		d.metadata.Close()
	}
}

// initDependencies connects to PostgreSQL and Qdrant and opens the
// upload store. The vector collection is created on first start.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	meta, err := metadata.NewPostgresStore(ctx, metadata.Config{
		DSN:            cfg.Database.DSN.Value(),
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	vectors, err := vectorstore.NewQdrantStore(vectorstore.Config{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		APIKey:         cfg.Qdrant.APIKey.Value(),
		CollectionName: cfg.Qdrant.Collection,
		VectorSize:     cfg.Qdrant.VectorSize,
		UseTLS:         cfg.Qdrant.UseTLS,
		MaxMessageSize: cfg.Qdrant.MaxMessageSize,
	}, logger)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	if err := vectors.EnsureCollection(ctx); err != nil {
		_ = vectors.Close()
		meta.Close()
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	files, err := filestore.NewStore(filestore.Config{
		Root:        cfg.Storage.RootDir,
		MaxFileSize: cfg.Storage.MaxFileBytes,
	}, logger)
	if err != nil {
		_ = vectors.Close()
		meta.Close()
		return nil, fmt.Errorf("opening file store: %w", err)
	}

	logger.Info(ctx, "dependencies initialized",
		zap.String("qdrant_collection", cfg.Qdrant.Collection),
		zap.Uint64("vector_size", cfg.Qdrant.VectorSize),
		zap.String("storage_root", cfg.Storage.RootDir))

	return &dependencies{metadata: meta, vectors: vectors, files: files}, nil
}

// services holds the business layer wired over the infrastructure.
type services struct {
	coordinator *ingest.Coordinator
	retriever   *retrieval.Retriever
	generator   answer.Generator
	sweeper     *retention.Sweeper
	verifier    *auth.Verifier
}

func initServices(cfg *config.Config, deps *dependencies, logger *logging.Logger) (*services, error) {
	extractor := extract.NewExtractor(logger)

	splitter, err := chunking.NewSplitter(chunking.Config{
		ChunkSize:      cfg.Ingest.ChunkSize,
		ChunkOverlap:   cfg.Ingest.ChunkOverlap,
		MinChunkLength: cfg.Ingest.MinChunkLength,
	})
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	embedder, err := embeddings.NewHFProvider(embeddings.Config{
		BaseURL:     cfg.Embeddings.BaseURL,
		Model:       cfg.Embeddings.Model,
		APIKey:      cfg.Embeddings.APIKey.Value(),
		Dimension:   int(cfg.Qdrant.VectorSize),
		Timeout:     cfg.Embeddings.Timeout,
		MaxAttempts: cfg.Embeddings.MaxRetries,
		BatchSize:   cfg.Embeddings.BatchSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	coordinator, err := ingest.NewCoordinator(ingest.Config{
		EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
	}, ingest.Deps{
		Documents: deps.metadata,
		Files:     deps.files,
		Extractor: extractor,
		Chunker:   splitter,
		Embedder:  embedder,
		Vectors:   deps.vectors,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ingest coordinator: %w", err)
	}

	retriever, err := retrieval.NewRetriever(retrieval.Config{}, embedder, deps.vectors, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	var generator answer.Generator
	if cfg.Answer.Enabled {
		g, err := answer.NewGeminiGenerator(answer.Config{
			BaseURL:     cfg.Answer.BaseURL,
			Model:       cfg.Answer.Model,
			APIKey:      cfg.Answer.APIKey.Value(),
			Timeout:     cfg.Answer.Timeout,
			MaxAttempts: cfg.Answer.MaxRetries,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating answer generator: %w", err)
		}
		generator = g
	}

	// The sweeper is constructed even when periodic retention is off so
	// manual cleanup still works; only the loop is gated.
	sweeper, err := retention.NewSweeper(retention.Config{
		Window:   cfg.Retention.Window,
		Interval: cfg.Retention.Interval,
	}, deps.metadata, coordinator, deps.vectors, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retention sweeper: %w", err)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Enabled:   cfg.Auth.Enabled,
		Secret:    cfg.Auth.JWTSecret.Value(),
		DevTenant: cfg.Auth.DevTenant,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating auth verifier: %w", err)
	}

	return &services{
		coordinator: coordinator,
		retriever:   retriever,
		generator:   generator,
		sweeper:     sweeper,
		verifier:    verifier,
	}, nil
}
