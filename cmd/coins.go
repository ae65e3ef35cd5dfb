package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

var coinsCmd = &cobra.Command{
	Use:   "coins",
	Short: "List tracked coins",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := store.CoinFilter{
			Status: model.CoinStatus(status),
			Order:  store.OrderCreatedDesc,
			Limit:  limit,
		}
		if status != "" && !filter.Status.Valid() {
			return eris.Errorf("unknown status %q", status)
		}

		coins, err := st.ListCoins(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "coins list")
		}

		if asJSON {
			return writeJSONTo(cmd.OutOrStdout(), coins)
		}
		if len(coins) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No coins found.")
			return nil
		}
		formatCoinsList(cmd.OutOrStdout(), coins)
		return nil
	},
}

var coinsShowCmd = &cobra.Command{
	Use:   "show <coin-id>",
	Short: "Show a coin with its latest score and analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		coin, err := st.GetCoin(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get coin %s", args[0])
		}
		out := coinDetail{Coin: coin}
		if out.Score, err = st.LatestScore(ctx, coin.ID); err != nil {
			return eris.Wrap(err, "latest score")
		}
		if out.Analysis, err = st.LatestDeepAnalysis(ctx, coin.ID); err != nil {
			return eris.Wrap(err, "latest analysis")
		}
		return writeJSONTo(cmd.OutOrStdout(), out)
	},
}

func formatCoinsList(w io.Writer, coins []model.Coin) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSYMBOL\tSTATUS\tSOURCE\tLINKS\tUPDATED")
	for _, c := range coins {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			c.ID,
			truncate(c.Name, 32),
			c.Symbol,
			c.Status,
			c.Source,
			len(c.OfficialLinks),
			c.UpdatedAt.Format(time.RFC3339),
		)
	}
	tw.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	coinsCmd.Flags().String("status", "", "filter by coin status")
	coinsCmd.Flags().Int("limit", 50, "maximum coins to list")
	coinsCmd.Flags().Bool("json", false, "print JSON instead of a table")
	coinsCmd.AddCommand(coinsShowCmd)
	rootCmd.AddCommand(coinsCmd)
}
