package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

// initCmd creates the vector collection and its payload indexes.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the vector collection and payload indexes",
	Long: `Create the configured Qdrant collection if it does not exist and
ensure the tenant and document payload indexes are in place. Safe to run
repeatedly; an existing collection is verified, not recreated.

Examples:
  # Initialize with the default config
  docchatctl init

  # Initialize against a specific config file
  docchatctl init --config /etc/docchatd/config.yaml`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
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

	if err := vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensuring collection: %w", err)
	}

	info, err := vectors.Info(ctx)
	if err != nil {
		return fmt.Errorf("reading collection info: %w", err)
	}

	cmd.Printf("Collection %q ready (vector size %d, %d points)\n",
		info.Name, info.VectorSize, info.PointsCount)
	return nil
}
