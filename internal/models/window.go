// -----------------------------------------------------------------------
// Time Window - One step of the expanding sampling ladder
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// TimeWindow is an absolute time range searched for sessions. Immutable
// once constructed; a finite ordered sequence of windows forms the
// sampling ladder.
type TimeWindow struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	Label    string        `json:"label"`
}

// NewTimeWindow builds a window extending duration past start.
func NewTimeWindow(start time.Time, duration time.Duration, label string) TimeWindow {
	return TimeWindow{
		Start:    start,
		End:      start.Add(duration),
		Duration: duration,
		Label:    label,
	}
}

// Contains reports whether t falls inside [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// BuildWindowLadder turns a list of hour durations into the ordered window
// ladder, every window anchored at the same start instant. Durations must
// be strictly increasing; a non-increasing ladder would re-search the same
// range without widening it.
func BuildWindowLadder(start time.Time, hours []int) ([]TimeWindow, error) {
	if len(hours) == 0 {
		return nil, fmt.Errorf("window ladder requires at least one duration")
	}

	windows := make([]TimeWindow, 0, len(hours))
	prev := 0
	for _, h := range hours {
		if h <= prev {
			return nil, fmt.Errorf("window ladder durations must be strictly increasing: %d after %d", h, prev)
		}
		prev = h
		d := time.Duration(h) * time.Hour
		windows = append(windows, NewTimeWindow(start, d, fmt.Sprintf("%dh", h)))
	}
	return windows, nil
}

// WindowReport records what one ladder step contributed, for progress and
// debug output.
type WindowReport struct {
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
	Found    int           `json:"found"` // Sessions returned by the store for this window
	Kept     int           `json:"kept"`  // New sessions accumulated after dedup and filtering
}
