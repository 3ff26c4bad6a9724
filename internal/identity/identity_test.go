package identity

import (
	"reflect"
	"testing"
	"time"

	"variazioni/internal/model"
)

func timed(summary, rfc3339 string) model.Event {
	at, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		panic(err)
	}
	return model.Event{Summary: summary, Start: model.TimedStamp(at)}
}

func allDay(summary, date string) model.Event {
	return model.Event{Summary: summary, Start: model.AllDayStamp(date)}
}

func TestExtractClass(t *testing.T) {
	tests := []struct {
		summary string
		want    string
		ok      bool
	}{
		{"CLASSE 5AIIN ASSENTE PROF. ROSSI", "5AIIN", true},
		{"VARIAZIONE ORARIO CLASSE 3B AULA 12", "3B", true},
		{"CLASSE   4CI ENTRA ALLE 9", "4CI", true},
		// Only the first marker is used.
		{"CLASSE 1A POI CLASSE 2B ", "1A", true},
		// The code must be followed by whitespace.
		{"PROF. ROSSI ASSENTE", "", false},
		{"nessuna classe qui", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ExtractClass(tt.summary)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractClass(%q) = (%q, %v), want (%q, %v)", tt.summary, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractProfessors(t *testing.T) {
	tests := []struct {
		summary string
		want    []string
	}{
		{"PROF. ROSSI CLASSE 5A", []string{"ROSSI"}},
		{"PROFF. ROSSI, BIANCHI CLASSE 5A", []string{"ROSSI", "BIANCHI"}},
		{"PROF.ssa ROSSI ASSENTE CLASSE 3B", []string{"ROSSI"}},
		{"PROFF. DE LUCA, D'AMICO AULA 7", []string{"DE LUCA", "D'AMICO"}},
		// Singular form without a dot falls through to the second phase.
		{"PROF ROSSI ASSENTE", []string{"ROSSI"}},
		// Repeated singular markers collect in order, duplicates included.
		{"PROF ROSSI, PROF BIANCHI", []string{"ROSSI", "BIANCHI"}},
		{"PROF ROSSI (1H) PROF ROSSI", []string{"ROSSI", "ROSSI"}},
		{"nessun professore qui", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := ExtractProfessors(tt.summary)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractProfessors(%q) = %v, want %v", tt.summary, got, tt.want)
		}
	}
}

func TestMatchesClassExact(t *testing.T) {
	ev := model.Event{Summary: "CLASSE 5AIIN ASSENTE PROF. ROSSI"}

	if !MatchesClass(ev, "5AIIN") {
		t.Error("exact code should match")
	}
	if !MatchesClass(ev, " 5aiin ") {
		t.Error("match must be case-insensitive and trimmed")
	}
	// No partial/prefix matching: "5A" must not match "5AIIN".
	if MatchesClass(ev, "5A") {
		t.Error("prefix code must not match a longer code")
	}
	if MatchesClass(model.Event{Summary: "nessuna classe"}, "5AIIN") {
		t.Error("event without a class marker must not match")
	}
}

func TestMatchesProfessor(t *testing.T) {
	bySummary := model.Event{Summary: "PROF.ssa ROSSI ASSENTE CLASSE 3B"}
	if !MatchesProfessor(bySummary, "rossi") {
		t.Error("summary match should be case-insensitive")
	}
	if MatchesProfessor(bySummary, "BIANCHI") {
		t.Error("unrelated professor must not match")
	}

	// Description fallback: substring check on "PROF" plus the target.
	byDesc := model.Event{
		Summary:     "Supplenza in 3B",
		Description: "PROF BIANCHI — sostituzione ROSSI",
	}
	if !MatchesProfessor(byDesc, "ROSSI") {
		t.Error("description fallback should match the target substring")
	}
	if !MatchesProfessor(byDesc, "BIANCHI") {
		t.Error("description fallback should match the named professor")
	}

	// Without the "PROF" literal the fallback must stay silent.
	noMarker := model.Event{
		Summary:     "Supplenza in 3B",
		Description: "sostituzione ROSSI",
	}
	if MatchesProfessor(noMarker, "ROSSI") {
		t.Error("fallback requires the PROF literal in the description")
	}
}

func TestFilterByDate(t *testing.T) {
	events := []model.Event{
		timed("a", "2024-05-10T08:00:00Z"),
		timed("b", "2024-05-11T08:00:00Z"),
		allDay("c", "2024-05-10"),
		{Summary: "d", Start: model.InvalidStamp("not a date")},
	}

	got := FilterByDate(events, "2024-05-10")
	if len(got) != 2 || got[0].Summary != "a" || got[1].Summary != "c" {
		t.Fatalf("FilterByDate returned %v", summaries(got))
	}

	// Idempotency: filtering an already single-day list by the same date
	// returns the identical list.
	again := FilterByDate(got, "2024-05-10")
	if !reflect.DeepEqual(again, got) {
		t.Error("FilterByDate is not idempotent")
	}
}

func TestSelectAndSortSectionScenario(t *testing.T) {
	events := []model.Event{
		timed("CLASSE 5A VARIAZIONE", "2024-05-10T08:00:00Z"),
		timed("CLASSE 5A VARIAZIONE", "2024-05-10T07:00:00Z"),
	}

	got := SelectAndSort(events, Query{Mode: ModeSection, Value: "5a", TargetDate: "2024-05-10"})
	if len(got) != 2 {
		t.Fatalf("want both events, got %d", len(got))
	}
	if got[0].Start.SortKey() >= got[1].Start.SortKey() {
		t.Error("07:00 event should order before 08:00 event")
	}
}

func TestSelectAndSortAllDayFirst(t *testing.T) {
	events := []model.Event{
		timed("CLASSE 2B USCITA ANTICIPATA", "2024-05-10T11:00:00Z"),
		allDay("CLASSE 2B ASSEMBLEA", "2024-05-10"),
		{Summary: "CLASSE 2B RECUPERO ", Start: model.InvalidStamp("2024-05-10??")},
		timed("CLASSE 2B ENTRATA POSTICIPATA", "2024-05-10T09:00:00Z"),
	}

	got := SelectAndSort(events, Query{Mode: ModeAll, TargetDate: "2024-05-10"})
	if len(got) != 4 {
		t.Fatalf("want 4 events, got %d: %v", len(got), summaries(got))
	}

	// All-day and unparseable starts share sort key 0 and keep input order;
	// timed events follow in ascending order.
	wantOrder := []string{
		"CLASSE 2B ASSEMBLEA",
		"CLASSE 2B RECUPERO ",
		"CLASSE 2B ENTRATA POSTICIPATA",
		"CLASSE 2B USCITA ANTICIPATA",
	}
	if !reflect.DeepEqual(summaries(got), wantOrder) {
		t.Errorf("order = %v, want %v", summaries(got), wantOrder)
	}
}

func TestSelectAndSortIsSubsequence(t *testing.T) {
	events := []model.Event{
		timed("CLASSE 5A VARIAZIONE", "2024-05-10T08:00:00Z"),
		timed("CLASSE 3B VARIAZIONE", "2024-05-10T09:00:00Z"),
		timed("CLASSE 5A VARIAZIONE", "2024-05-11T08:00:00Z"),
	}

	got := SelectAndSort(events, Query{Mode: ModeSection, Value: "5A", TargetDate: "2024-05-10"})

	// No event may be fabricated: everything in the output must be present
	// in the input.
	for _, ev := range got {
		found := false
		for _, in := range events {
			if reflect.DeepEqual(ev, in) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("output event %q not present in input", ev.Summary)
		}
	}
	if len(got) != 1 {
		t.Errorf("want exactly the one matching event, got %d", len(got))
	}
}

func TestSelectAndSortProfessorFallback(t *testing.T) {
	events := []model.Event{
		timed("PROF.ssa ROSSI ASSENTE CLASSE 3B", "2024-05-10T08:00:00Z"),
		{
			Summary:     "Supplenza in 4C",
			Description: "PROF BIANCHI — sostituzione ROSSI",
			Start:       model.AllDayStamp("2024-05-10"),
		},
		timed("PROF. VERDI ASSENTE CLASSE 1A", "2024-05-10T10:00:00Z"),
	}

	got := SelectAndSort(events, Query{Mode: ModeProfessor, Value: "ROSSI", TargetDate: "2024-05-10"})
	if len(got) != 2 {
		t.Fatalf("want summary match plus description fallback, got %d: %v", len(got), summaries(got))
	}
	// The all-day fallback event sorts first.
	if got[0].Summary != "Supplenza in 4C" {
		t.Errorf("all-day event should order first, got %q", got[0].Summary)
	}
}

func TestValidMode(t *testing.T) {
	for _, s := range []string{"all", "section", "professor"} {
		if !ValidMode(s) {
			t.Errorf("ValidMode(%q) = false", s)
		}
	}
	for _, s := range []string{"", "class", "ALL"} {
		if ValidMode(s) {
			t.Errorf("ValidMode(%q) = true", s)
		}
	}
}

func summaries(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Summary)
	}
	return out
}
