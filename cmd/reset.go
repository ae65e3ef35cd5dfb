package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var resetStuck bool

var resetCmd = &cobra.Command{
	Use:   "reset [coin-id]",
	Short: "Send a coin, or every stuck coin, back to pending",
	Long:  "Resets one coin to pending, or with --stuck every processing and retry_pending coin regardless of how long it has been idle.",
	Args: func(cmd *cobra.Command, args []string) error {
		if resetStuck && len(args) > 0 {
			return eris.New("pass either a coin id or --stuck, not both")
		}
		if !resetStuck && len(args) != 1 {
			return eris.New("a coin id is required unless --stuck is set")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if resetStuck {
			n, err := env.Pipeline.ResetAllStuck(ctx)
			if err != nil {
				return eris.Wrap(err, "reset stuck coins")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d coin(s)\n", n)
			return nil
		}

		if err := env.Pipeline.ResetCoin(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "reset coin %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "coin %s reset to pending\n", args[0])
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetStuck, "stuck", false, "reset every processing and retry_pending coin")
	rootCmd.AddCommand(resetCmd)
}
