// Package export writes the start orders of a scheduling run in formats
// consumed by site operations tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/obsched/core/runlog"
)

// Entry is one start order: which observation begins where and when.
type Entry struct {
	RunID       string        `json:"run_id"`
	Observation string        `json:"observation"`
	Resource    string        `json:"resource"`
	Offset      int           `json:"offset"`
	Start       time.Duration `json:"start"`
	Duration    time.Duration `json:"duration"`
	Priority    float64       `json:"priority"`
	Quality     float64       `json:"quality"`
}

// Entries lists the start orders of rec in plan order. Offsets are local to
// the site block.
func Entries(rec runlog.RunRecord) []Entry {
	slot := rec.Grid.SlotLength
	per := rec.Grid.SlotsPerResource
	out := make([]Entry, 0, len(rec.Starts))
	for _, st := range rec.Starts {
		off := st.Slot
		if per > 0 {
			off %= per
		}
		out = append(out, Entry{
			RunID:       rec.RunID,
			Observation: st.Observation,
			Resource:    st.Resource,
			Offset:      off,
			Start:       time.Duration(off) * slot,
			Duration:    time.Duration(st.Slots) * slot,
			Priority:    st.Priority,
			Quality:     st.Quality,
		})
	}
	return out
}

// WriteJSON writes the start orders to w in JSON format.
func WriteJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	return enc.Encode(entries)
}

// WriteCSV writes the start orders to w in CSV format. Times are in seconds
// from the start of the night.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_id", "observation", "resource", "offset", "start_s", "duration_s", "priority", "quality"}); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.RunID,
			e.Observation,
			e.Resource,
			strconv.Itoa(e.Offset),
			strconv.FormatFloat(e.Start.Seconds(), 'f', -1, 64),
			strconv.FormatFloat(e.Duration.Seconds(), 'f', -1, 64),
			strconv.FormatFloat(e.Priority, 'f', -1, 64),
			strconv.FormatFloat(e.Quality, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
