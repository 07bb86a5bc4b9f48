package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/polywatch/polywatch/internal/config"
	"github.com/polywatch/polywatch/internal/output"
	"github.com/polywatch/polywatch/internal/ratelimit"
)

var bucketsFormat string

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "Show the configured rate limit buckets",
	Long: `Buckets lists every configured quota bucket with its effective
capacity after safety scaling, as a fresh crawl would see them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(bucketsFormat)
		if err != nil {
			return err
		}

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}

		registry := ratelimit.NewRegistry(ratelimit.Config{
			SafetyFraction: cfg.Rate.SafetyFraction,
			Quotas:         quotas(cfg),
			Windows:        windows(cfg),
		}, nil)
		registry.Warm()

		rendered, err := output.FormatBuckets(format, registry.Snapshots())
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bucketsCmd)
	bucketsCmd.Flags().StringVar(&bucketsFormat, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
}
