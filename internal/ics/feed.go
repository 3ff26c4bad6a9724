package ics

import (
	"context"
	"time"

	"variazioni/internal/model"
)

// FeedSource adapts one ICS subscription to the day-source shape used by
// the API layer: fetch, parse, expand for a single day.
type FeedSource struct {
	ID  string
	URL string
	// Loc is the display timezone for expanded instances; time.Local when nil.
	Loc *time.Location
}

// FetchDay downloads and expands the feed's variation events for one day
// (YYYY-MM-DD).
func (f FeedSource) FetchDay(ctx context.Context, day string) ([]model.Event, error) {
	body, err := Fetch(ctx, f.ID, f.URL)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseICS(f.ID, body)
	if err != nil {
		return nil, err
	}
	return ExpandDay(parsed, day, f.Loc)
}
