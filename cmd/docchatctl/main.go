// Package main implements the docchatctl CLI for admin operations against
// docchatd's backing stores.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docchatd/internal/config"
	"github.com/fyrsmithlabs/docchatd/internal/logging"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
	"github.com/fyrsmithlabs/docchatd/internal/vectorstore"
)

var (
	// configPath is the YAML config file, shared with the daemon.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docchatctl",
	Short: "Admin CLI for docchatd backing stores",
	Long: `docchatctl performs administrative operations directly against
docchatd's PostgreSQL and Qdrant stores: collection setup, retention
sweeps, and status reporting.

It reads the same configuration as the daemon (YAML file plus DOCCHAT_*
environment overrides).`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
}

// loadConfig loads the daemon configuration shared by all commands.
func loadConfig() (*config.Config, error) {
	return config.LoadWithFile(configPath)
}

// quietLogger keeps store internals out of the command output.
func quietLogger() *logging.Logger {
	return logging.NewNop()
}

// openVectors connects to Qdrant with the configured collection.
func openVectors(cfg *config.Config) (*vectorstore.QdrantStore, error) {
	return vectorstore.NewQdrantStore(vectorstore.Config{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		APIKey:         cfg.Qdrant.APIKey.Value(),
		CollectionName: cfg.Qdrant.Collection,
		VectorSize:     cfg.Qdrant.VectorSize,
		UseTLS:         cfg.Qdrant.UseTLS,
		MaxMessageSize: cfg.Qdrant.MaxMessageSize,
	}, quietLogger())
}

// openMetadata connects to PostgreSQL.
func openMetadata(ctx context.Context, cfg *config.Config) (*metadata.PostgresStore, error) {
	return metadata.NewPostgresStore(ctx, metadata.Config{
		DSN:            cfg.Database.DSN.Value(),
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, quietLogger())
}
