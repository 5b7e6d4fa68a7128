package events

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robin-osint/robin/internal/agent"
	"github.com/robin-osint/robin/internal/subagent"
	"github.com/robin-osint/robin/internal/tools"
)

// collectSink records every delivered event.
type collectSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *collectSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *collectSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func decode[T any](t *testing.T, ev Event) T {
	t.Helper()
	var d T
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		t.Fatalf("decode %s payload: %v", ev.Type, err)
	}
	return d
}

func kindsOf(evs []Event) []Kind {
	out := make([]Kind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestCorrelatorPairsToolLifecycles(t *testing.T) {
	sink := &collectSink{}
	c := NewCorrelator(sink)

	c.OnText("Investigating. ")
	c.OnToolUse(tools.NameSearch, map[string]any{"query": "q"})
	c.OnToolResult(tools.NameSearch, tools.Output{Text: "found things"})
	c.OnToolUse(tools.NameScrape, map[string]any{})
	c.OnToolResult(tools.NameScrape, tools.Output{Text: "scraped"})
	c.OnToolUse(tools.NameSave, map[string]any{})
	c.OnComplete(agent.Result{Text: "done", SessionID: "s1", NumTurns: 4})

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	evs := sink.all()
	want := []Kind{
		KindText,
		KindToolStart, // search
		KindToolEnd,   // search, synthesized when scrape starts
		KindToolStart, // scrape
		KindToolEnd,   // scrape, synthesized when save starts
		KindToolStart, // save
		KindToolEnd,   // save, synthesized at complete
		KindComplete,
	}
	got := kindsOf(evs)
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", got, want)
		}
	}

	// Every tool_end references its matching tool_start's id.
	starts := map[string]string{} // id -> tool
	for _, ev := range evs {
		switch ev.Type {
		case KindToolStart:
			d := decode[ToolStartData](t, ev)
			starts[d.ID] = d.Tool
		case KindToolEnd:
			d := decode[ToolEndData](t, ev)
			tool, ok := starts[d.ID]
			if !ok {
				t.Errorf("tool_end id %s has no matching tool_start", d.ID)
			}
			if tool != d.Tool {
				t.Errorf("tool_end tool = %s, start said %s", d.Tool, tool)
			}
			if d.DurationMs < 0 {
				t.Errorf("negative duration %d", d.DurationMs)
			}
		}
	}

	// The search tool_end carries the captured output preview.
	end := decode[ToolEndData](t, evs[2])
	if end.Output != "found things" {
		t.Errorf("tool_end output = %q", end.Output)
	}
}

func TestCorrelatorSeqStrictlyIncreasing(t *testing.T) {
	sink := &collectSink{}
	c := NewCorrelator(sink)

	for i := 0; i < 10; i++ {
		c.OnText("chunk")
	}
	c.OnComplete(agent.Result{})
	_ = c.Close()

	evs := sink.all()
	if len(evs) != 11 {
		t.Fatalf("got %d events, want 11", len(evs))
	}
	for i, ev := range evs {
		if ev.Seq != int64(i+1) {
			t.Fatalf("event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
	}
}

func TestCorrelatorDelegationFanOut(t *testing.T) {
	sink := &collectSink{}
	c := NewCorrelator(sink)

	kinds := []any{subagent.KindIOCExtractor, subagent.KindMalwareAnalyst}
	c.OnToolUse(tools.NameDelegate, map[string]any{"agent_types": kinds, "content": "x"})
	c.OnToolResult(tools.NameDelegate, tools.Output{
		Text: "## Sub-Agent Analysis Results",
		Data: []subagent.Result{
			{AgentType: subagent.KindIOCExtractor, Analysis: "3 wallets", Success: true},
			{AgentType: subagent.KindMalwareAnalyst, Success: false, Error: "timeout"},
		},
	})
	c.OnComplete(agent.Result{})
	_ = c.Close()

	got := kindsOf(sink.all())
	want := []Kind{
		KindToolStart,
		KindSubagentStart,
		KindSubagentStart,
		KindSubagentEnd,
		KindSubagentEnd,
		KindToolEnd,
		KindComplete,
	}
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", got, want)
		}
	}

	ends := sink.all()[3:5]
	ok := decode[SubagentEndData](t, ends[0])
	if !ok.Success || ok.Analysis != "3 wallets" {
		t.Errorf("first subagent_end = %+v", ok)
	}
	failed := decode[SubagentEndData](t, ends[1])
	if failed.Success || failed.Error != "timeout" {
		t.Errorf("second subagent_end = %+v", failed)
	}
}

func TestCorrelatorFailStopsSequence(t *testing.T) {
	sink := &collectSink{}
	c := NewCorrelator(sink)

	c.OnToolUse(tools.NameSearch, nil)
	c.Fail(errors.New("engine exploded"))

	// Nothing after the terminal error is accepted.
	c.OnText("late")
	c.OnToolUse(tools.NameScrape, nil)
	c.Fail(errors.New("again"))
	c.OnComplete(agent.Result{})
	_ = c.Close()

	got := kindsOf(sink.all())
	want := []Kind{KindToolStart, KindToolEnd, KindError}
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}

	errData := decode[ErrorData](t, sink.all()[2])
	if errData.Code != ErrorCode {
		t.Errorf("code = %q, want %q", errData.Code, ErrorCode)
	}
	if errData.Message != "engine exploded" {
		t.Errorf("message = %q", errData.Message)
	}
}

func TestCorrelatorOutputPreviewTruncated(t *testing.T) {
	sink := &collectSink{}
	c := NewCorrelator(sink)

	c.OnToolUse(tools.NameSearch, nil)
	c.OnToolResult(tools.NameSearch, tools.Output{Text: strings.Repeat("a", 1000)})
	c.OnComplete(agent.Result{})
	_ = c.Close()

	end := decode[ToolEndData](t, sink.all()[1])
	if len(end.Output) != toolOutputPreview+3 {
		t.Errorf("preview len = %d, want %d", len(end.Output), toolOutputPreview+3)
	}
	if !strings.HasSuffix(end.Output, "...") {
		t.Error("truncated preview should end with ellipsis")
	}
}

func TestCorrelatorSinkErrorReported(t *testing.T) {
	sink := &collectSink{err: errors.New("consumer gone")}
	c := NewCorrelator(sink)

	c.OnText("a")
	c.OnText("b")
	c.OnComplete(agent.Result{})

	err := c.Close()
	if err == nil || err.Error() != "consumer gone" {
		t.Fatalf("Close() error = %v, want consumer gone", err)
	}
}

func TestCorrelatorToolDurations(t *testing.T) {
	sink := &collectSink{}
	base := time.Unix(1000, 0)
	clock := base
	c := newCorrelator(sink, func() time.Time { return clock })

	c.OnToolUse(tools.NameSearch, nil)
	clock = base.Add(1500 * time.Millisecond)
	c.OnToolUse(tools.NameScrape, nil)
	clock = base.Add(2 * time.Second)
	c.OnComplete(agent.Result{})
	_ = c.Close()

	var ends []ToolEndData
	for _, ev := range sink.all() {
		if ev.Type == KindToolEnd {
			ends = append(ends, decode[ToolEndData](t, ev))
		}
	}
	if len(ends) != 2 {
		t.Fatalf("got %d tool_end events, want 2", len(ends))
	}
	if ends[0].DurationMs != 1500 {
		t.Errorf("first duration = %d, want 1500", ends[0].DurationMs)
	}
	if ends[1].DurationMs != 500 {
		t.Errorf("second duration = %d, want 500", ends[1].DurationMs)
	}
}

func TestCorrelatorSequenceContinuesAcrossRuns(t *testing.T) {
	sink := &collectSink{}

	c1 := NewCorrelator(sink)
	c1.OnText("first run")
	c1.OnComplete(agent.Result{Text: "first run", NumTurns: 1})
	if err := c1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c1.Seq() != 2 {
		t.Fatalf("Seq() after first run = %d, want 2", c1.Seq())
	}

	c2 := NewCorrelatorAt(sink, c1.Seq())
	c2.OnText("follow-up")
	c2.OnComplete(agent.Result{Text: "follow-up", NumTurns: 1})
	if err := c2.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	evs := sink.all()
	if len(evs) != 4 {
		t.Fatalf("delivered %d events, want 4", len(evs))
	}
	for i, ev := range evs {
		if want := int64(i + 1); ev.Seq != want {
			t.Errorf("event[%d].Seq = %d, want %d", i, ev.Seq, want)
		}
	}
}
