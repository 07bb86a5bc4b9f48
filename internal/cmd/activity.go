package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/polywatch/polywatch/internal/clients"
)

var (
	activityLimit  int
	activityOffset int

	holdersLimit int

	positionsLimit  int
	positionsOffset int
)

var activityCmd = &cobra.Command{
	Use:   "activity WALLET",
	Short: "Fetch a wallet's trade activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		rows, err := a.data.GetActivity(cmd.Context(), args[0], clients.PageFilter{
			Limit:  activityLimit,
			Offset: activityOffset,
		})
		if err != nil {
			return err
		}
		return encodeRows(rows)
	},
}

var holdersCmd = &cobra.Command{
	Use:   "holders CONDITION_ID",
	Short: "Fetch the top holders of a market's tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		rows, err := a.data.GetHolders(cmd.Context(), args[0], holdersLimit)
		if err != nil {
			return err
		}
		return encodeRows(rows)
	},
}

var positionsCmd = &cobra.Command{
	Use:   "positions WALLET",
	Short: "Fetch a wallet's open positions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		rows, err := a.data.GetPositions(cmd.Context(), args[0], clients.PageFilter{
			Limit:  positionsLimit,
			Offset: positionsOffset,
		})
		if err != nil {
			return err
		}
		return encodeRows(rows)
	},
}

func encodeRows(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(activityCmd)
	activityCmd.Flags().IntVar(&activityLimit, "limit", 100, "rows per page")
	activityCmd.Flags().IntVar(&activityOffset, "offset", 0, "page offset")

	rootCmd.AddCommand(holdersCmd)
	holdersCmd.Flags().IntVar(&holdersLimit, "limit", 20, "holders per token")

	rootCmd.AddCommand(positionsCmd)
	positionsCmd.Flags().IntVar(&positionsLimit, "limit", 100, "rows per page")
	positionsCmd.Flags().IntVar(&positionsOffset, "offset", 0, "page offset")
}
