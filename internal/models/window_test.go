package models

import (
	"testing"
	"time"
)

func TestBuildWindowLadder(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	windows, err := BuildWindowLadder(start, []int{3, 6, 12, 144})
	if err != nil {
		t.Fatalf("BuildWindowLadder returned error: %v", err)
	}

	if len(windows) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(windows))
	}

	expected := []struct {
		label    string
		duration time.Duration
	}{
		{"3h", 3 * time.Hour},
		{"6h", 6 * time.Hour},
		{"12h", 12 * time.Hour},
		{"144h", 144 * time.Hour},
	}

	for i, want := range expected {
		w := windows[i]
		if w.Label != want.label {
			t.Errorf("window %d: label = %q, want %q", i, w.Label, want.label)
		}
		if w.Duration != want.duration {
			t.Errorf("window %d: duration = %v, want %v", i, w.Duration, want.duration)
		}
		if !w.Start.Equal(start) {
			t.Errorf("window %d: start = %v, want anchor %v", i, w.Start, start)
		}
		if !w.End.Equal(start.Add(want.duration)) {
			t.Errorf("window %d: end = %v, want %v", i, w.End, start.Add(want.duration))
		}
	}
}

func TestBuildWindowLadderRejectsBadLadders(t *testing.T) {
	start := time.Now()

	tests := []struct {
		name  string
		hours []int
	}{
		{"empty", nil},
		{"repeated duration", []int{3, 3}},
		{"decreasing", []int{6, 3}},
		{"zero", []int{0, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildWindowLadder(start, tt.hours); err == nil {
				t.Errorf("BuildWindowLadder(%v) succeeded, want error", tt.hours)
			}
		})
	}
}

func TestTimeWindowContains(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	w := NewTimeWindow(start, 3*time.Hour, "3h")

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"start is inclusive", start, true},
		{"inside", start.Add(90 * time.Minute), true},
		{"end is exclusive", start.Add(3 * time.Hour), false},
		{"before start", start.Add(-time.Second), false},
		{"after end", start.Add(4 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}
