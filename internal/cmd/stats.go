package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/polywatch/polywatch/internal/config"
	"github.com/polywatch/polywatch/internal/output"
	"github.com/polywatch/polywatch/internal/perf"
)

var (
	statsFile   string
	statsFormat string
	statsWindow int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize per-endpoint timings from a sample log",
	Long: `Stats replays a JSON-lines sample log written during a crawl and
prints per-endpoint latency percentiles and error rates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(statsFormat)
		if err != nil {
			return err
		}

		path := statsFile
		if path == "" {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			path = cfg.Perf.SampleLog
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		tracker := perf.NewTracker(perf.TrackerConfig{WindowSize: statsWindow})
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lines, skipped := 0, 0
		for scanner.Scan() {
			var sample perf.Sample
			if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
				skipped++
				continue
			}
			latency := time.Duration(sample.Latency * float64(time.Second))
			tracker.Record(sample.Endpoint, latency, sample.Status)
			lines++
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		rendered, err := output.FormatEndpointStats(format, tracker.Snapshot())
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		if skipped > 0 {
			fmt.Fprintf(os.Stderr, "%d samples read, %d malformed lines skipped\n", lines, skipped)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsFile, "file", "", "sample log to read (default perf.sample_log from config)")
	statsCmd.Flags().StringVar(&statsFormat, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	statsCmd.Flags().IntVar(&statsWindow, "window", 100000, "samples per endpoint kept for percentiles")
}
