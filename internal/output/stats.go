package output

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/polywatch/polywatch/internal/perf"
)

// FormatEndpointStats renders per-endpoint timing summaries in the requested
// format, sorted by endpoint name.
func FormatEndpointStats(format Format, snaps map[string]perf.EndpointSnapshot) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(snaps, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	endpoints := make([]string, 0, len(snaps))
	for ep := range snaps {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	t := newTable()
	t.AppendHeader(table.Row{"Endpoint", "Count", "Avg", "P50", "P90", "P95", "Max", "Err%"})
	for _, ep := range endpoints {
		s := snaps[ep]
		t.AppendRow(table.Row{
			ep,
			s.Count,
			seconds(s.Mean),
			seconds(s.P50),
			seconds(s.P90),
			seconds(s.P95),
			seconds(s.Max),
			fmt.Sprintf("%.1f", s.ErrRate*100),
		})
	}
	return render(t, format), nil
}

func seconds(v float64) string {
	return fmt.Sprintf("%.3fs", v)
}
