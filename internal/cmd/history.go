package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyStart    int64
	historyEnd      int64
	historyDays     int
	historyFidelity int
)

var historyCmd = &cobra.Command{
	Use:   "history TOKEN_ID",
	Short: "Fetch price history for a CLOB token",
	Long: `History fetches sampled price points for a token over a time window.
The window defaults to the last --days days; explicit --start/--end unix
timestamps take precedence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end := historyStart, historyEnd
		if end == 0 {
			end = time.Now().Unix()
		}
		if start == 0 {
			start = end - int64(historyDays)*86400
		}
		if start >= end {
			return fmt.Errorf("start %d must be before end %d", start, end)
		}

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		points, err := a.clob.GetPricesHistory(cmd.Context(), args[0], start, end, historyFidelity)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(points); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d points\n", len(points))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int64Var(&historyStart, "start", 0, "window start as unix seconds")
	historyCmd.Flags().Int64Var(&historyEnd, "end", 0, "window end as unix seconds (default now)")
	historyCmd.Flags().IntVar(&historyDays, "days", 7, "window length in days when --start is not set")
	historyCmd.Flags().IntVar(&historyFidelity, "fidelity", 60, "sample resolution in minutes")
}
