package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gemradar",
	Short: "Crypto project discovery and analysis pipeline",
	Long:  "Discovers newly listed coins, fetches their official sites, extracts evidence-backed facts with an LLM, scores them and writes a qualitative analysis.",
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
