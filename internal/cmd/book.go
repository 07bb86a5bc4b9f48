package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var bookCmd = &cobra.Command{
	Use:   "book TOKEN_ID",
	Short: "Fetch the public order book for a CLOB token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		book, err := a.clob.GetBook(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(book); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d bids, %d asks\n", len(book.Bids), len(book.Asks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bookCmd)
}
