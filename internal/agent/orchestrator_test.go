package agent

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/robin-osint/robin/internal/engine"
	"github.com/robin-osint/robin/internal/tools"
)

// scriptStream replays a fixed message sequence.
type scriptStream struct {
	msgs []*engine.Message
	pos  int
	err  error
}

func (s *scriptStream) Recv() (*engine.Message, error) {
	if s.pos >= len(s.msgs) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	msg := s.msgs[s.pos]
	s.pos++
	return msg, nil
}

func (s *scriptStream) Close() error { return nil }

// scriptEngine hands out one scripted stream per Query call and records the
// requests it saw.
type scriptEngine struct {
	scripts   [][]*engine.Message
	streamErr error
	queryErr  error
	requests  []engine.Request
}

func (e *scriptEngine) Query(ctx context.Context, req engine.Request) (engine.Stream, error) {
	e.requests = append(e.requests, req)
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	var msgs []*engine.Message
	if len(e.scripts) > 0 {
		msgs = e.scripts[0]
		e.scripts = e.scripts[1:]
	}
	return &scriptStream{msgs: msgs, err: e.streamErr}, nil
}

func (e *scriptEngine) Name() string { return "script" }

func fullSession(sessionID, finalText string) []*engine.Message {
	return []*engine.Message{
		{Type: engine.MessageInit, SessionID: sessionID},
		{Type: engine.MessageText, Text: "Starting the investigation. "},
		{Type: engine.MessageToolUse, ToolName: tools.NameSearch, ToolInput: map[string]any{"query": "q"}},
		{Type: engine.MessageToolResult, ToolName: tools.NameSearch, ToolOutput: tools.Output{Text: "results"}},
		{Type: engine.MessageText, Text: "Found several leads."},
		{Type: engine.MessageResult, SessionID: sessionID, Text: finalText, DurationMs: 1200, NumTurns: 3},
	}
}

func TestInvestigateAccumulatesAndCallsBack(t *testing.T) {
	eng := &scriptEngine{scripts: [][]*engine.Message{
		fullSession("sess-1", "Found several leads."),
	}}

	var texts []string
	var toolUses []string
	var completed *Result

	o := New(eng, Options{Model: "m"}, Callbacks{
		OnText:     func(s string) { texts = append(texts, s) },
		OnToolUse:  func(name string, input map[string]any) { toolUses = append(toolUses, name) },
		OnComplete: func(r Result) { completed = &r },
	})

	result, err := o.Investigate(context.Background(), "find the leak source")
	if err != nil {
		t.Fatalf("Investigate() error = %v", err)
	}

	// The final result text repeats the last streamed fragment and must not
	// be appended twice.
	want := "Starting the investigation. Found several leads."
	if result.Text != want {
		t.Errorf("Text = %q, want %q", result.Text, want)
	}
	if len(texts) != 2 {
		t.Errorf("OnText fired %d times, want 2", len(texts))
	}
	if result.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", result.SessionID)
	}
	if result.NumTurns != 3 || result.DurationMs != 1200 {
		t.Errorf("NumTurns/DurationMs = %d/%d", result.NumTurns, result.DurationMs)
	}
	if len(result.ToolsUsed) != 1 || result.ToolsUsed[0].Name != tools.NameSearch {
		t.Errorf("ToolsUsed = %+v", result.ToolsUsed)
	}
	if len(toolUses) != 1 {
		t.Errorf("OnToolUse fired %d times, want 1", len(toolUses))
	}
	if completed == nil || completed.Text != want {
		t.Errorf("OnComplete result = %+v", completed)
	}
	if o.Status() != StatusCompleted {
		t.Errorf("Status = %s", o.Status())
	}
}

func TestInvestigateAppendsNovelFinalText(t *testing.T) {
	eng := &scriptEngine{scripts: [][]*engine.Message{{
		{Type: engine.MessageInit, SessionID: "s"},
		{Type: engine.MessageText, Text: "partial"},
		{Type: engine.MessageResult, SessionID: "s", Text: " plus a distinct summary"},
	}}}

	o := New(eng, Options{}, Callbacks{})
	result, err := o.Investigate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Investigate() error = %v", err)
	}
	if result.Text != "partial plus a distinct summary" {
		t.Errorf("Text = %q", result.Text)
	}
}

func TestFollowUpResumesSession(t *testing.T) {
	eng := &scriptEngine{scripts: [][]*engine.Message{
		fullSession("sess-7", ""),
		fullSession("sess-7", ""),
	}}

	o := New(eng, Options{}, Callbacks{})
	if _, err := o.Investigate(context.Background(), "first"); err != nil {
		t.Fatalf("Investigate() error = %v", err)
	}
	if _, err := o.FollowUp(context.Background(), "second"); err != nil {
		t.Fatalf("FollowUp() error = %v", err)
	}

	if len(eng.requests) != 2 {
		t.Fatalf("engine saw %d requests, want 2", len(eng.requests))
	}
	if eng.requests[0].Resume != "" {
		t.Errorf("first request Resume = %q, want empty", eng.requests[0].Resume)
	}
	if eng.requests[1].Resume != "sess-7" {
		t.Errorf("second request Resume = %q, want sess-7", eng.requests[1].Resume)
	}
}

func TestResetSessionStartsFresh(t *testing.T) {
	eng := &scriptEngine{scripts: [][]*engine.Message{
		fullSession("sess-old", ""),
		fullSession("sess-new", ""),
	}}

	o := New(eng, Options{}, Callbacks{})
	if _, err := o.Investigate(context.Background(), "first"); err != nil {
		t.Fatalf("Investigate() error = %v", err)
	}
	o.ResetSession()
	if o.SessionID() != "" {
		t.Error("ResetSession should clear the continuation token")
	}
	if _, err := o.Investigate(context.Background(), "second"); err != nil {
		t.Fatalf("Investigate() error = %v", err)
	}
	if eng.requests[1].Resume != "" {
		t.Errorf("post-reset request Resume = %q, want empty", eng.requests[1].Resume)
	}
}

func TestInvestigateWithoutTerminalSummary(t *testing.T) {
	// The stream ends without a Result message; the run still finalizes
	// from the accumulated text.
	eng := &scriptEngine{scripts: [][]*engine.Message{{
		{Type: engine.MessageInit, SessionID: "s"},
		{Type: engine.MessageText, Text: "all I managed"},
	}}}

	o := New(eng, Options{}, Callbacks{})
	result, err := o.Investigate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Investigate() error = %v", err)
	}
	if result.Text != "all I managed" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.NumTurns != 0 {
		t.Errorf("NumTurns = %d, want 0", result.NumTurns)
	}
}

func TestInvestigateStreamFailure(t *testing.T) {
	eng := &scriptEngine{
		scripts:   [][]*engine.Message{{{Type: engine.MessageInit, SessionID: "s"}}},
		streamErr: errors.New("connection reset"),
	}

	o := New(eng, Options{}, Callbacks{})
	_, err := o.Investigate(context.Background(), "q")
	if err == nil {
		t.Fatal("Investigate() should surface stream failure")
	}
	if o.Status() != StatusFailed {
		t.Errorf("Status = %s, want failed", o.Status())
	}
}

func TestInvestigateQueryFailure(t *testing.T) {
	eng := &scriptEngine{queryErr: errors.New("no api key")}

	o := New(eng, Options{}, Callbacks{})
	if _, err := o.Investigate(context.Background(), "q"); err == nil {
		t.Fatal("Investigate() should surface Query failure")
	}
	if o.Status() != StatusFailed {
		t.Errorf("Status = %s, want failed", o.Status())
	}
}

func TestInvestigateEmptyQuery(t *testing.T) {
	o := New(&scriptEngine{}, Options{}, Callbacks{})
	if _, err := o.Investigate(context.Background(), "  "); err == nil {
		t.Fatal("Investigate() with blank query should error")
	}
}
