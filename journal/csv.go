package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/tradeguard/risk"
)

var eventHeader = []string{"event_id", "time", "kind", "message", "total_checks", "orders_blocked"}

// WriteEventsCSV writes events with a header row.
func WriteEventsCSV(w io.Writer, events []risk.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(eventHeader); err != nil {
		return err
	}
	for _, ev := range events {
		err := cw.Write([]string{
			ev.ID,
			ev.Timestamp.UTC().Format(time.RFC3339),
			string(ev.Kind),
			ev.Message,
			strconv.FormatInt(ev.Stats.TotalChecks, 10),
			strconv.FormatInt(ev.Stats.OrdersBlocked, 10),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
