package output

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/polywatch/polywatch/internal/ratelimit"
)

// FormatBuckets renders bucket snapshots in the requested format.
func FormatBuckets(format Format, snaps []ratelimit.Snapshot) (string, error) {
	if format == FormatJSON {
		rows := make([]bucketRow, 0, len(snaps))
		for _, s := range snaps {
			rows = append(rows, bucketRow{
				Name:     s.Name,
				Tokens:   s.Tokens,
				Capacity: s.Capacity,
				Windows:  s.Windows,
				Backoff:  s.Backoff.String(),
			})
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Bucket", "Tokens", "Capacity", "Windows", "Backoff"})
	for _, s := range snaps {
		backoff := "-"
		if s.Backoff > 0 {
			backoff = s.Backoff.String()
		}
		t.AppendRow(table.Row{
			s.Name,
			fmt.Sprintf("%.1f", s.Tokens),
			fmt.Sprintf("%.0f", s.Capacity),
			s.Windows,
			backoff,
		})
	}
	return render(t, format), nil
}

type bucketRow struct {
	Name     string  `json:"name"`
	Tokens   float64 `json:"tokens"`
	Capacity float64 `json:"capacity"`
	Windows  int     `json:"windows"`
	Backoff  string  `json:"backoff"`
}
