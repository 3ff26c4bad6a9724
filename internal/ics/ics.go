package ics

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "variazioni/internal/log"
	"variazioni/internal/source"
)

// ParsedEvent is the normalized representation of a VEVENT as produced by
// the feed parser. Recurrence expansion operates on this type before the
// result is converted into model events.
type ParsedEvent struct {
	SourceID string

	UID string

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, in the event's own timezone
	IsOverride bool
}

// Fetch downloads one ICS feed body. Feeds are small and re-fetched on the
// refresh schedule, so unlike the backend client this path carries no disk
// cache.
func Fetch(ctx context.Context, sourceID, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, errors.New("ics source URL is empty")
	}

	client := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("ics fetch: " + resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	appLog.Debug("ics fetch completed", "id", sourceID, "url", source.RedactURL(rawURL), "bytes", len(body))
	return body, nil
}

// ParseICS parses a single ICS payload into a list of ParsedEvent. All-day
// events are detected from the DTSTART value shape (VALUE=DATE or a value
// without a time part). RRULE/EXDATE/RECURRENCE-ID are recorded but not
// expanded here; see expand.go.
func ParseICS(sourceID string, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(sourceID, comp)
		if perr != nil {
			// Skip this event but keep parsing the rest of the feed.
			appLog.Error("ics vevent parse failed", perr, "id", sourceID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", sourceID, "event_count", len(events))
	return events, nil
}

func parseVEvent(sourceID string, ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent
	out.SourceID = sourceID

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	// DTSTART / DTEND via the library's timezone-aware helpers.
	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	out.Start = start
	out.End = end

	if dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart); dtStartProp != nil {
		if params := dtStartProp.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(dtStartProp.Value, "T") {
			out.AllDay = true
		}
	}

	// Feeds occasionally omit DTEND; treat such events as covering their
	// start (or the whole day when all-day) so the overlap check keeps them.
	if out.End.IsZero() && !out.Start.IsZero() {
		if out.AllDay {
			out.End = out.Start.Add(24 * time.Hour)
		} else {
			out.End = out.Start
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE may appear multiple times and carry comma-separated values.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseICSTime parses the basic ICS date/date-time forms used by EXDATE and
// RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}
