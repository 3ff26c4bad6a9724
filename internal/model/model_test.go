package model

import (
	"testing"
	"time"
)

func TestStampDayKey(t *testing.T) {
	at, _ := time.Parse(time.RFC3339, "2024-05-10T08:00:00Z")

	tests := []struct {
		name  string
		stamp Stamp
		want  string
	}{
		{"all-day", AllDayStamp("2024-05-10"), "2024-05-10"},
		{"timed", TimedStamp(at), "2024-05-10"},
		{"invalid with date prefix", InvalidStamp("2024-05-10 boh"), "2024-05-10"},
		{"invalid without date prefix", InvalidStamp("mercoledì"), ""},
		{"invalid with non-date prefix", InvalidStamp("lunedì prossimo forse"), ""},
	}
	for _, tt := range tests {
		if got := tt.stamp.DayKey(); got != tt.want {
			t.Errorf("%s: DayKey() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestStampSortKey(t *testing.T) {
	at, _ := time.Parse(time.RFC3339, "2024-05-10T08:00:00Z")

	if AllDayStamp("2024-05-10").SortKey() != 0 {
		t.Error("all-day stamps must carry sort key 0")
	}
	if InvalidStamp("boh").SortKey() != 0 {
		t.Error("invalid stamps must carry sort key 0")
	}
	if TimedStamp(at).SortKey() != at.UnixMilli() {
		t.Error("timed stamps sort by epoch millis")
	}
	// All-day orders before any timed event on the same day.
	if AllDayStamp("2024-05-10").SortKey() >= TimedStamp(at).SortKey() {
		t.Error("all-day must order before timed")
	}
}

func TestEventDayKey(t *testing.T) {
	ev := Event{Summary: "CLASSE 5A VARIAZIONE ", Start: AllDayStamp("2024-05-10")}
	if ev.DayKey() != "2024-05-10" {
		t.Errorf("DayKey() = %q", ev.DayKey())
	}
}
