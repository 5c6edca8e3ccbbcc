package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteCSV streams events as CSV for the export endpoint.
func WriteCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	header := []string{"occurred_at", "batch_id", "actor_id", "kind", "entity_type", "target_id", "ip_address", "user_agent", "original", "changes"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			ev.At.UTC().Format(time.RFC3339),
			ev.BatchID,
			strconv.FormatInt(ev.ActorID, 10),
			string(ev.Kind),
			ev.EntityType,
			strconv.FormatInt(ev.TargetID, 10),
			ev.IP,
			ev.UserAgent,
			ev.Original,
			ev.Changes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
