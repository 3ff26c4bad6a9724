package identity

import (
	"regexp"
	"sort"
	"strings"

	"variazioni/internal/model"
)

// Mode selects how a query matches events.
type Mode string

const (
	// ModeAll keeps every event on the target day.
	ModeAll Mode = "all"
	// ModeSection keeps events whose summary names the queried class code.
	ModeSection Mode = "section"
	// ModeProfessor keeps events naming the queried professor.
	ModeProfessor Mode = "professor"
)

// ValidMode reports whether s is one of the supported query modes.
func ValidMode(s string) bool {
	switch Mode(s) {
	case ModeAll, ModeSection, ModeProfessor:
		return true
	}
	return false
}

// Query describes one filter request against a day's events.
type Query struct {
	Mode Mode
	// Value is the class code (ModeSection) or professor name
	// (ModeProfessor); ignored for ModeAll.
	Value string
	// TargetDate is the day bucket to keep, as YYYY-MM-DD.
	TargetDate string
}

// Summaries use ad hoc conventions to embed identities:
//
//	"VARIAZIONE ORARIO CLASSE 5AIIN ASSENTE PROF. ROSSI"
//	"PROFF. ROSSI, BIANCHI CLASSE 5A"
//	"PROF.ssa BIANCHI (sostituzione)"
//
// classRe captures the single alphanumeric token after "CLASSE"; the token
// must be followed by whitespace.
//
// profListRe is the plural form: "PROF" / "PROFF" with a dot (optionally
// "ssa"), capturing a comma-separated run of uppercase names up to CLASSE /
// AULA / ASSENTE / end of string.
//
// profSingleRe is the singular/repeated fallback: markers match any case,
// the captured name stays strictly uppercase, terminated by a comma,
// parenthesis, ASSENTE, CLASSE or end of string.
var (
	classRe      = regexp.MustCompile(`CLASSE\s+([A-Z0-9]+)\s`)
	profListRe   = regexp.MustCompile(`PROFF?\.(?:ssa)? ?([A-Z ,']+?)(?:CLASSE|AULA|ASSENTE|$)`)
	profSingleRe = regexp.MustCompile(`(?i:PROF)\.?(?i:ssa)?\.? ?([A-Z ]+?)(?:,|\(|\)|(?i:ASSENTE)|(?i:CLASSE)|$)`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// maxProfessorNameLen drops garbage captures that ran past a real name.
const maxProfessorNameLen = 50

// ExtractClass scans a summary for the first "CLASSE <code>" marker and
// returns the code verbatim. A summary references at most one class; only
// the first match is used.
func ExtractClass(summary string) (string, bool) {
	m := classRe.FindStringSubmatch(summary)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractProfessors returns the professor names referenced by a summary, in
// order of appearance, duplicates included. The plural comma-list form is
// tried first; when it yields at least one name the singular form is never
// consulted. Returns an empty slice when no marker is present.
func ExtractProfessors(summary string) []string {
	if names := extractProfessorList(summary); len(names) > 0 {
		return names
	}
	return extractProfessorSingles(summary)
}

// extractProfessorList handles "PROFF. ROSSI, BIANCHI ..." (and the dotted
// singular "PROF. ROSSI"). The capture is split on commas; each piece is
// trimmed, stripped of trailing quote characters and whitespace-collapsed.
func extractProfessorList(summary string) []string {
	m := profListRe.FindStringSubmatch(summary)
	if m == nil {
		return nil
	}

	names := make([]string, 0, 2)
	for _, piece := range strings.Split(m[1], ",") {
		name := strings.TrimSpace(piece)
		name = strings.TrimRight(name, `'"`)
		name = spaceRunRe.ReplaceAllString(name, " ")
		if name == "" || len(name) >= maxProfessorNameLen {
			continue
		}
		names = append(names, name)
	}
	return names
}

// extractProfessorSingles handles repeated standalone markers, e.g.
// "PROF ROSSI (1h) PROF.ssa BIANCHI". Every occurrence contributes one name.
func extractProfessorSingles(summary string) []string {
	matches := profSingleRe.FindAllStringSubmatch(summary, -1)
	if matches == nil {
		return nil
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		name = spaceRunRe.ReplaceAllString(name, " ")
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// MatchesClass reports whether the event's summary references exactly the
// given class code. Comparison is upper-cased and trimmed on both sides;
// there is no prefix or substring matching ("5A" never matches "5AIIN").
func MatchesClass(ev model.Event, classCode string) bool {
	code, ok := ExtractClass(ev.Summary)
	if !ok {
		return false
	}
	return normalize(code) == normalize(classCode)
}

// MatchesProfessor reports whether the event references the given professor.
//
// The primary rule is exact: some name extracted from the summary must
// upper-trim to the target. When the summary yields no match, a looser
// fallback checks the description for both the literal "PROF" and the target
// as substrings. The fallback is intentionally asymmetric (substring, not
// exact) and is kept as a recall-over-precision secondary signal.
func MatchesProfessor(ev model.Event, professorName string) bool {
	target := normalize(professorName)
	if target == "" {
		return false
	}

	for _, name := range ExtractProfessors(ev.Summary) {
		if normalize(name) == target {
			return true
		}
	}

	desc := strings.ToUpper(ev.Description)
	return strings.Contains(desc, "PROF") && strings.Contains(desc, target)
}

// FilterByDate keeps the events whose day key equals targetDateISO
// (YYYY-MM-DD), preserving input order. Day keys are exact string matches;
// no timezone re-interpretation happens here.
func FilterByDate(events []model.Event, targetDateISO string) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.DayKey() == targetDateISO {
			out = append(out, ev)
		}
	}
	return out
}

// SelectAndSort applies the full pipeline for one query: date filter, mode
// filter, then a stable ascending sort by effective start. All-day events
// (and events with an unparseable start) carry sort key 0 and therefore
// order before any timed event on the same day; ties keep input order.
//
// The result is always a subsequence of the input; an empty result is a
// normal outcome, not an error.
func SelectAndSort(events []model.Event, q Query) []model.Event {
	out := FilterByDate(events, q.TargetDate)

	switch q.Mode {
	case ModeSection:
		out = keep(out, func(ev model.Event) bool { return MatchesClass(ev, q.Value) })
	case ModeProfessor:
		out = keep(out, func(ev model.Event) bool { return MatchesProfessor(ev, q.Value) })
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.SortKey() < out[j].Start.SortKey()
	})
	return out
}

func keep(events []model.Event, pred func(model.Event) bool) []model.Event {
	out := events[:0:0]
	for _, ev := range events {
		if pred(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
