package source

import (
	"encoding/json"
	"time"

	appLog "variazioni/internal/log"
	"variazioni/internal/model"
)

// rawEvent is the backend wire shape. Start/end arrive as strings: either a
// full timestamp or a 10-character date-only value (the all-day convention),
// with an optional explicit flag.
type rawEvent struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Start       string `json:"start"`
	End         string `json:"end"`
	IsAllDay    *bool  `json:"isAllDay"`
}

// timestamp layouts accepted for timed starts, tried in order.
var timedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// DecodeEvents decodes a JSON array of raw backend events into model
// events. Entries that are not valid JSON objects are skipped and counted;
// unparseable timestamps degrade to invalid stamps rather than dropping
// the event.
func DecodeEvents(sourceID string, body []byte) (events []model.Event, skipped int) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		appLog.Error("backend payload is not a JSON array", err, "source", sourceID)
		return nil, 0
	}

	events = make([]model.Event, 0, len(raws))
	for _, msg := range raws {
		var re rawEvent
		if err := json.Unmarshal(msg, &re); err != nil {
			appLog.Error("skipping undecodable backend event", err, "source", sourceID)
			skipped++
			continue
		}
		events = append(events, model.Event{
			ID:          re.ID,
			SourceID:    sourceID,
			Summary:     re.Summary,
			Description: re.Description,
			Location:    re.Location,
			Start:       DecodeStamp(re.Start, re.IsAllDay),
			End:         DecodeStamp(re.End, re.IsAllDay),
		})
	}
	return events, skipped
}

// DecodeStamp converts one wire boundary into the explicit stamp union.
// This is the only place the string-length all-day convention is applied;
// everything downstream works on the union.
//
//   - Explicit all-day flag, or a 10-character YYYY-MM-DD value: all-day.
//   - Otherwise a parseable timestamp: timed.
//   - Otherwise: invalid, preserving the raw value. The event stays
//     renderable and sorts with the all-day bucket.
func DecodeStamp(raw string, isAllDay *bool) model.Stamp {
	if isAllDay != nil && *isAllDay {
		date := raw
		if len(date) > 10 {
			date = date[:10]
		}
		return model.AllDayStamp(date)
	}

	if len(raw) == 10 {
		if _, err := time.Parse("2006-01-02", raw); err == nil {
			return model.AllDayStamp(raw)
		}
	}

	for _, layout := range timedLayouts {
		if at, err := time.Parse(layout, raw); err == nil {
			return model.TimedStamp(at)
		}
	}
	return model.InvalidStamp(raw)
}
