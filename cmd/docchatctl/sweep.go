package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docchatd/internal/chunking"
	"github.com/fyrsmithlabs/docchatd/internal/config"
	"github.com/fyrsmithlabs/docchatd/internal/embeddings"
	"github.com/fyrsmithlabs/docchatd/internal/extract"
	"github.com/fyrsmithlabs/docchatd/internal/filestore"
	"github.com/fyrsmithlabs/docchatd/internal/ingest"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
	"github.com/fyrsmithlabs/docchatd/internal/retention"
	"github.com/fyrsmithlabs/docchatd/internal/vectorstore"
)

var (
	retentionDays int
	dryRun        bool
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Override the configured retention window in days")
	sweepCmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be deleted without deleting")
}

// sweepCmd runs one retention sweep.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete documents and vectors older than the retention window",
	Long: `Run one retention sweep: delete every document created before the
retention cutoff, together with its vectors and stored file, then remove
orphaned points left in the vector store.

Examples:
  # Sweep with the configured window
  docchatctl sweep

  # Sweep everything older than two days
  docchatctl sweep --retention-days 2

  # Show what a sweep would remove
  docchatctl sweep --dry-run`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	window := sweepWindow(cfg.Retention.Window, retentionDays)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	meta, err := openMetadata(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer meta.Close()

	vectors, err := openVectors(cfg)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer vectors.Close()

	if dryRun {
		return printSweepPlan(ctx, cmd, meta, vectors, window)
	}

	coordinator, err := buildCoordinator(cfg, meta, vectors)
	if err != nil {
		return err
	}

	sweeper, err := retention.NewSweeper(retention.Config{
		Window:   window,
		Interval: cfg.Retention.Interval,
	}, meta, coordinator, vectors, quietLogger())
	if err != nil {
		return fmt.Errorf("creating sweeper: %w", err)
	}

	result, err := sweeper.RunWindow(ctx, window)
	if err != nil {
		return fmt.Errorf("running sweep: %w", err)
	}

	cmd.Printf("Sweep complete (window %s):\n", window)
	cmd.Printf("  Documents scanned: %d\n", result.DocumentsScanned)
	cmd.Printf("  Documents deleted: %d\n", result.DocumentsDeleted)
	cmd.Printf("  Vectors deleted:   %d\n", result.VectorsDeleted)
	cmd.Printf("  Orphans deleted:   %d\n", result.OrphansDeleted)
	if result.Failures > 0 {
		cmd.Printf("  Failures:          %d\n", result.Failures)
	}
	return nil
}

// sweepWindow returns the effective retention window. A positive day
// count overrides the configured window.
func sweepWindow(configured time.Duration, days int) time.Duration {
	if days > 0 {
		return time.Duration(days) * 24 * time.Hour
	}
	return configured
}

// printSweepPlan lists expired rows and points without touching them.
func printSweepPlan(ctx context.Context, cmd *cobra.Command, meta *metadata.PostgresStore, vectors *vectorstore.QdrantStore, window time.Duration) error {
	cutoff := time.Now().UTC().Add(-window)

	docs, err := meta.ListOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing expired documents: %w", err)
	}
	points, err := vectors.ScanOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("scanning expired points: %w", err)
	}

	cmd.Printf("Dry run, cutoff %s:\n", cutoff.Format(time.RFC3339))
	if len(docs) == 0 {
		cmd.Println("  No expired documents.")
	}
	for _, doc := range docs {
		cmd.Printf("  %s/%s  %s  (created %s)\n",
			doc.TenantID, doc.ID, doc.Name, doc.CreatedAt.Format(time.RFC3339))
	}
	cmd.Printf("Expired points, including those of the documents above: %d\n", len(points))
	return nil
}

// buildCoordinator wires the ingestion coordinator the sweep deletes
// through, so CLI sweeps and daemon sweeps share one deletion path.
func buildCoordinator(cfg *config.Config, meta *metadata.PostgresStore, vectors *vectorstore.QdrantStore) (*ingest.Coordinator, error) {
	files, err := filestore.NewStore(filestore.Config{
		Root:        cfg.Storage.RootDir,
		MaxFileSize: cfg.Storage.MaxFileBytes,
	}, quietLogger())
	if err != nil {
		return nil, fmt.Errorf("opening file store: %w", err)
	}

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
	}, quietLogger())
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	coordinator, err := ingest.NewCoordinator(ingest.Config{
		EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
	}, ingest.Deps{
		Documents: meta,
		Files:     files,
		Extractor: extract.NewExtractor(quietLogger()),
		Chunker:   splitter,
		Embedder:  embedder,
		Vectors:   vectors,
		Logger:    quietLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	return coordinator, nil
}
