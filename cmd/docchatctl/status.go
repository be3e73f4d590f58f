package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docchatd/internal/metadata"
)

var statusTenant string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "", "Also report document and vector counts for this tenant")
}

// statusCmd reports collection and tenant state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vector collection status",
	Long: `Show the Qdrant collection status and, when --tenant is given, the
document and vector counts for that tenant.

Examples:
  # Collection status only
  docchatctl status

  # Include one tenant's counts
  docchatctl status --tenant acme`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vectors, err := openVectors(cfg)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer vectors.Close()

	info, err := vectors.Info(ctx)
	if err != nil {
		return fmt.Errorf("reading collection info: %w", err)
	}

	cmd.Printf("Collection: %s\n", info.Name)
	cmd.Printf("  Status:      %s\n", info.Status)
	cmd.Printf("  Points:      %d\n", info.PointsCount)
	cmd.Printf("  Vector size: %d\n", info.VectorSize)

	if statusTenant == "" {
		return nil
	}

	meta, err := openMetadata(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer meta.Close()

	stats, err := meta.Stats(ctx, statusTenant)
	if err != nil {
		return fmt.Errorf("loading document stats: %w", err)
	}
	count, err := vectors.Count(ctx, statusTenant)
	if err != nil {
		return fmt.Errorf("counting tenant vectors: %w", err)
	}

	cmd.Printf("\nTenant %s:\n", statusTenant)
	cmd.Printf("  Documents:   %d\n", stats.Total)
	for _, status := range []metadata.Status{
		metadata.StatusReceived,
		metadata.StatusProcessing,
		metadata.StatusCompleted,
		metadata.StatusError,
	} {
		if n := stats.ByStatus[status]; n > 0 {
			cmd.Printf("    %-10s %d\n", status+":", n)
		}
	}
	cmd.Printf("  Total bytes: %d\n", stats.TotalSizeBytes)
	cmd.Printf("  Vectors:     %d\n", count)
	return nil
}
