package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dps-crimelog/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crimelog",
	Short: "Incremental archive of the DPS daily incident logs",
	Long: `Fetches the daily incident-log PDFs published by the Department of Public Safety,
extracts their tables, deduplicates by event number and keeps a newest-first
archive in CSV and JSON.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
