package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/robin-osint/robin/internal/events"
)

func renderEvent(t *testing.T, sink *consoleSink, kind events.Kind, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := sink.Send(events.Event{Type: kind, Data: data}); err != nil {
		t.Fatalf("Send(%s) error = %v", kind, err)
	}
}

func TestConsoleSinkCompleteLine(t *testing.T) {
	var out strings.Builder
	sink := newConsoleSink(&out, false)

	renderEvent(t, sink, events.KindText, events.TextData{Content: "findings"})
	renderEvent(t, sink, events.KindComplete, events.CompleteData{Text: "findings", NumTurns: 3, DurationMs: 1200})

	got := out.String()
	if !strings.Contains(got, "✓ complete (3 turns, 1200ms)") {
		t.Errorf("complete line missing or malformed in output:\n%s", got)
	}
	if strings.Contains(got, "—") {
		t.Errorf("output contains an em dash:\n%s", got)
	}
}

func TestConsoleSinkToolLines(t *testing.T) {
	var out strings.Builder
	sink := newConsoleSink(&out, false)

	renderEvent(t, sink, events.KindToolStart, events.ToolStartData{ID: "1", Tool: "darkweb_search"})
	renderEvent(t, sink, events.KindToolEnd, events.ToolEndData{ID: "1", Tool: "darkweb_search", DurationMs: 40})
	renderEvent(t, sink, events.KindError, events.ErrorData{Code: "ORCHESTRATION_ERROR", Message: "engine down"})

	got := out.String()
	for _, want := range []string{
		"⚙ darkweb_search ...",
		"✓ darkweb_search (40ms)",
		"✗ ORCHESTRATION_ERROR: engine down",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestConsoleSinkJSONMode(t *testing.T) {
	var out strings.Builder
	sink := newConsoleSink(&out, true)

	renderEvent(t, sink, events.KindText, events.TextData{Content: "chunk"})

	var ev events.Event
	if err := json.Unmarshal([]byte(out.String()), &ev); err != nil {
		t.Fatalf("json mode line is not valid JSON: %v", err)
	}
	if ev.Type != events.KindText {
		t.Errorf("event type = %s, want text", ev.Type)
	}
}
