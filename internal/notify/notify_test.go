package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"variazioni/internal/model"
	"variazioni/internal/prefs"
)

func dayEvents() []model.Event {
	at, _ := time.Parse(time.RFC3339, "2024-05-10T08:00:00Z")
	return []model.Event{
		{Summary: "CLASSE 5AIIN ASSENTE PROF. ROSSI", Location: "Aula 12", Start: model.TimedStamp(at)},
		{Summary: "CLASSE 5AIIN ASSEMBLEA ", Start: model.AllDayStamp("2024-05-10")},
		{Summary: "CLASSE 3B VARIAZIONE ", Start: model.AllDayStamp("2024-05-10")},
	}
}

func TestBuildDigest(t *testing.T) {
	sub := prefs.Subscription{Kind: "section", Value: "5AIIN"}

	d := BuildDigest(sub, dayEvents(), "2024-05-10")
	if d.Count != 2 {
		t.Fatalf("count = %d, want 2", d.Count)
	}
	// All-day entry first, then the timed one with its clock prefix.
	if d.Lines[0] != "tutto il giorno  CLASSE 5AIIN ASSEMBLEA " {
		t.Errorf("line 0 = %q", d.Lines[0])
	}
	if d.Lines[1] != "08:00  CLASSE 5AIIN ASSENTE PROF. ROSSI (Aula 12)" {
		t.Errorf("line 1 = %q", d.Lines[1])
	}
}

func TestBuildDigestEmpty(t *testing.T) {
	sub := prefs.Subscription{Kind: "professor", Value: "BIANCHI"}
	d := BuildDigest(sub, dayEvents(), "2024-05-10")
	if d.Count != 0 || len(d.Lines) != 0 {
		t.Errorf("digest should be empty, got %+v", d)
	}
}

func TestDeliverAll(t *testing.T) {
	var received []Digest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var d Digest
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		received = append(received, d)
	}))
	defer srv.Close()

	subs := []prefs.Subscription{
		{ID: "s1", Kind: "section", Value: "5AIIN", Endpoint: srv.URL},
		// No variations for this one; skipped because sendEmpty is false.
		{ID: "s2", Kind: "professor", Value: "BIANCHI", Endpoint: srv.URL},
	}

	sent, errs := NewDeliverer(false).DeliverAll(context.Background(), subs, dayEvents(), "2024-05-10")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if sent != 1 || len(received) != 1 {
		t.Fatalf("sent = %d, received = %d, want 1/1", sent, len(received))
	}
	if received[0].Value != "5AIIN" || received[0].Count != 2 {
		t.Errorf("payload = %+v", received[0])
	}
}

func TestDeliverAllSendEmpty(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	subs := []prefs.Subscription{{ID: "s2", Kind: "professor", Value: "BIANCHI", Endpoint: srv.URL}}
	sent, errs := NewDeliverer(true).DeliverAll(context.Background(), subs, dayEvents(), "2024-05-10")
	if len(errs) != 0 || sent != 1 || hits != 1 {
		t.Errorf("sent=%d hits=%d errs=%v, want empty digest delivered", sent, hits, errs)
	}
}

func TestDeliverAllCollectsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	subs := []prefs.Subscription{
		{ID: "bad", Kind: "section", Value: "5AIIN", Endpoint: srv.URL},
	}
	sent, errs := NewDeliverer(false).DeliverAll(context.Background(), subs, dayEvents(), "2024-05-10")
	if sent != 0 || len(errs) != 1 {
		t.Errorf("sent=%d errs=%v, want delivery failure collected", sent, errs)
	}
}
