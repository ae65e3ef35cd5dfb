package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/pipeline"
)

var (
	runManualURL  string
	runResetCoin  string
	runResetStuck bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every pipeline stage once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := pipeline.Options{
			ManualURL:     runManualURL,
			ResetCoinID:   runResetCoin,
			ResetAllStuck: runResetStuck,
		}

		result, err := env.Pipeline.Run(ctx, opts)
		if result != nil {
			if wErr := writeJSONTo(cmd.OutOrStdout(), result); wErr != nil {
				zap.L().Warn("run: write result", zap.Error(wErr))
			}
		}
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Int("phases", len(result.Phases)),
			zap.Int64("input_tokens", result.Tokens.InputTokens),
			zap.Int64("output_tokens", result.Tokens.OutputTokens),
		)
		return nil
	},
}

// writeJSONTo prints v as indented JSON.
func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.Flags().StringVar(&runManualURL, "manual-url", "", "submit a coin detail URL and skip discovery")
	runCmd.Flags().StringVar(&runResetCoin, "reset-coin", "", "reset this coin to pending before the run")
	runCmd.Flags().BoolVar(&runResetStuck, "reset-stuck", false, "reset every processing and retry_pending coin before the run")
	rootCmd.AddCommand(runCmd)
}
