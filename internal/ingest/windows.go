package ingest

import (
	"fmt"
	"time"
)

const (
	// DefaultLookbackYears is how far back a full ingestion reaches when no
	// start date is given.
	DefaultLookbackYears = 10

	// DefaultDaysPerWindow splits the date range into windows this long.
	DefaultDaysPerWindow = 30
)

// Window is one date range of the ingestion plan. End is exclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// RangeID is the stable identifier recorded in progress files.
func (w Window) RangeID() string {
	return fmt.Sprintf("%s-%s", w.Start.Format("20060102"), w.End.Format("20060102"))
}

// ComputeWindows splits [start, end) into consecutive windows of daysPer
// days; the last window is shortened to end. Zero start defaults to ten
// years before end; zero end defaults to now.
func ComputeWindows(start, end time.Time, daysPer int) []Window {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.AddDate(-DefaultLookbackYears, 0, 0)
	}
	if daysPer <= 0 {
		daysPer = DefaultDaysPerWindow
	}
	if !start.Before(end) {
		return nil
	}

	var windows []Window
	for cur := start; cur.Before(end); {
		next := cur.AddDate(0, 0, daysPer)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cur, End: next})
		cur = next
	}
	return windows
}
