package model

import "time"

// StampKind discriminates the three possible shapes of an event boundary.
type StampKind int

const (
	// StampTimed is a concrete instant with a time of day.
	StampTimed StampKind = iota
	// StampAllDay is a date with no time of day.
	StampAllDay
	// StampInvalid is a boundary whose raw value could not be parsed.
	// Invalid stamps sort together with all-day stamps (key 0) so the
	// event is still displayed instead of being dropped.
	StampInvalid
)

// Stamp is an explicit union for an event boundary: either an all-day date,
// a timed instant, or an unparseable raw value. Modeling this as a union
// instead of sniffing string lengths downstream keeps the day-key logic in
// one place.
type Stamp struct {
	Kind StampKind

	// Date is the YYYY-MM-DD day for StampAllDay.
	Date string
	// At is the instant for StampTimed.
	At time.Time
	// Raw preserves the original wire value for StampInvalid.
	Raw string
}

// AllDayStamp builds a StampAllDay for the given YYYY-MM-DD date string.
func AllDayStamp(date string) Stamp {
	return Stamp{Kind: StampAllDay, Date: date}
}

// TimedStamp builds a StampTimed for the given instant.
func TimedStamp(at time.Time) Stamp {
	return Stamp{Kind: StampTimed, At: at}
}

// InvalidStamp builds a StampInvalid preserving the raw wire value.
func InvalidStamp(raw string) Stamp {
	return Stamp{Kind: StampInvalid, Raw: raw}
}

// DayKey returns the calendar date (YYYY-MM-DD) used to bucket the event
// for date filtering.
//
//   - All-day: the date string itself.
//   - Timed: the date portion of the instant.
//   - Invalid: the leading YYYY-MM-DD prefix of the raw value when it looks
//     like one, else empty (an empty day key never matches a target day).
func (s Stamp) DayKey() string {
	switch s.Kind {
	case StampAllDay:
		return s.Date
	case StampTimed:
		return s.At.Format("2006-01-02")
	default:
		if len(s.Raw) >= 10 {
			prefix := s.Raw[:10]
			if _, err := time.Parse("2006-01-02", prefix); err == nil {
				return prefix
			}
		}
		return ""
	}
}

// SortKey returns the ordering key for display sorting: epoch milliseconds
// for timed stamps, 0 for all-day and invalid stamps so that they order
// before any timed event on the same day.
func (s Stamp) SortKey() int64 {
	if s.Kind != StampTimed {
		return 0
	}
	return s.At.UnixMilli()
}

// IsAllDay reports whether the stamp carries no time of day.
func (s Stamp) IsAllDay() bool {
	return s.Kind == StampAllDay
}

// Event is a single timetable-variation event as consumed by the identity
// extraction and filtering core. Events are immutable value objects for the
// duration of one fetch-filter-render cycle; nothing in this repo mutates
// them after decoding.
type Event struct {
	// ID is an opaque identifier, stable per event instance.
	ID string
	// SourceID names the source the event came from (backend, ICS feed id).
	SourceID string

	// Summary is the free-text event title carrying the embedded class-code
	// and professor-name conventions ("CLASSE 5AIIN", "PROF. ROSSI", ...).
	Summary string
	// Description is optional free text; may carry a professor reference.
	Description string
	// Location is the room/venue, when the source provides one.
	Location string

	Start Stamp
	End   Stamp
}

// DayKey returns the event's date bucket, taken from its start boundary.
func (e Event) DayKey() string {
	return e.Start.DayKey()
}
