package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "variazioni/internal/log"
	"variazioni/internal/model"
)

var errOccurrenceCap = errors.New("max occurrences reached")

// maxOccurrencesPerEvent caps recurrence expansion so a malformed RRULE
// cannot blow up a single-day query.
const maxOccurrencesPerEvent = 500

// ExpandDay expands parsed feed events into concrete model events falling
// on the given day (YYYY-MM-DD, interpreted in loc). It handles:
//
//   - single non-recurring events
//   - RRULE-based recurrence
//   - EXDATE exception removal
//   - RECURRENCE-ID overrides
//   - all-day semantics (emitted as all-day stamps)
func ExpandDay(events []ParsedEvent, day string, loc *time.Location) ([]model.Event, error) {
	if loc == nil {
		loc = time.Local
	}
	dayStart, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return nil, err
	}
	dayEnd := dayStart.Add(24 * time.Hour)

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0)
	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		for _, ev := range baseEvents {
			out = append(out, expandEvent(ev, ov, dayStart, dayEnd, loc)...)
		}
	}
	return out, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, dayStart, dayEnd time.Time, loc *time.Location) []model.Event {
	if ev.RawRRule == "" {
		if !rangesOverlap(ev.Start, ev.End, dayStart, dayEnd) {
			return nil
		}
		start, end := ev.Start, ev.End
		if o, ok := overrideForStart(overrides, start); ok {
			ev, start, end = o, o.Start, o.End
		}
		return []model.Event{toModelEvent(ev, start, end, loc)}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Query the rule in the event's own timezone to keep DST handling with
	// the rule library.
	occTimes := set.Between(dayStart.In(ev.Start.Location()), dayEnd.In(ev.Start.Location()), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		appLog.Error("ics expand: truncated occurrences", errOccurrenceCap, "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	out := make([]model.Event, 0, len(occTimes))
	dur := ev.End.Sub(ev.Start)
	for _, occStart := range occTimes {
		occEnd := occStart.Add(dur)
		if ev.AllDay {
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.Add(24 * time.Hour)
		}

		baseEv, start, end := ev, occStart, occEnd
		if o, ok := overrideForStart(overrides, occStart); ok {
			baseEv, start, end = o, o.Start, o.End
		}
		out = append(out, toModelEvent(baseEv, start, end, loc))
	}
	return out
}

// overrideForStart finds an override whose RECURRENCE-ID matches the given
// instance start with exact time equality.
func overrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// toModelEvent converts one concrete instance into a model event in the
// display timezone. The instance start doubles as the event ID suffix so
// recurring instances stay distinguishable.
func toModelEvent(ev ParsedEvent, start, end time.Time, loc *time.Location) model.Event {
	startLocal := start.In(loc)
	endLocal := end.In(loc)

	out := model.Event{
		ID:          ev.UID + "/" + startLocal.Format(time.RFC3339),
		SourceID:    ev.SourceID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
	}
	if ev.AllDay {
		out.Start = model.AllDayStamp(startLocal.Format("2006-01-02"))
		out.End = model.AllDayStamp(endLocal.Add(-time.Second).Format("2006-01-02"))
	} else {
		out.Start = model.TimedStamp(startLocal)
		out.End = model.TimedStamp(endLocal)
	}
	return out
}

func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
