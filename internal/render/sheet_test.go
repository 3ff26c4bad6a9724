package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"variazioni/internal/model"
)

func TestRenderSheet(t *testing.T) {
	at, _ := time.Parse(time.RFC3339, "2024-05-10T08:00:00Z")
	events := []model.Event{
		{Summary: "CLASSE 5AIIN ASSEMBLEA ", Start: model.AllDayStamp("2024-05-10")},
		{Summary: "CLASSE 5AIIN ASSENTE PROF. ROSSI", Location: "Aula 12", Start: model.TimedStamp(at)},
	}

	var buf bytes.Buffer
	data := BuildSheet(events, "2024-05-10", "section", "5AIIN")
	if err := RenderSheet(&buf, data); err != nil {
		t.Fatalf("RenderSheet failed: %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		`data-ready="true"`,
		"Variazioni orario 2024-05-10",
		"section: 5AIIN",
		"tutto il giorno",
		"08:00",
		"CLASSE 5AIIN ASSENTE PROF. ROSSI",
		"(Aula 12)",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered sheet missing %q", want)
		}
	}
}

func TestRenderSheetEmptyState(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSheet(&buf, BuildSheet(nil, "2024-05-10", "all", "")); err != nil {
		t.Fatalf("RenderSheet failed: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "Nessuna variazione") {
		t.Error("empty day should render the empty-state message")
	}
	if !strings.Contains(html, "tutte le classi") {
		t.Error("all mode should render the catch-all label")
	}
}

func TestCaptureSheetPNGValidation(t *testing.T) {
	if err := CaptureSheetPNG(context.Background(), CaptureOptions{OutputPath: "x.png"}); err == nil {
		t.Error("missing URL must be rejected before launching a browser")
	}
	if err := CaptureSheetPNG(context.Background(), CaptureOptions{URL: "http://127.0.0.1:1/sheet"}); err == nil {
		t.Error("missing output path must be rejected before launching a browser")
	}
}
