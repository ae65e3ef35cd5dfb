package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var submitCmd = &cobra.Command{
	Use:   "submit <detail-url>",
	Short: "Add a coin by its listing detail URL",
	Long:  "Validates the detail URL, reads the coin name and symbol from the page and stores the coin as a manual submission. Resubmitting a known coin returns the existing record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		coin, err := env.Pipeline.Submit(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "submit coin")
		}

		zap.L().Info("coin submitted",
			zap.String("coin_id", coin.ID),
			zap.String("name", coin.Name),
			zap.String("symbol", coin.Symbol),
			zap.String("status", string(coin.Status)),
		)
		return writeJSONTo(cmd.OutOrStdout(), coin)
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
