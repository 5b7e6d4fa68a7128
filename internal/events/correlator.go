package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/robin-osint/robin/internal/agent"
	"github.com/robin-osint/robin/internal/subagent"
	"github.com/robin-osint/robin/internal/tools"
	"github.com/robin-osint/robin/pkg/observability"
)

// toolOutputPreview caps how much tool output rides on a tool_end event.
const toolOutputPreview = 500

// Correlator consumes the orchestrator's callback signals and produces the
// ordered event sequence. The upstream engine never signals "tool finished",
// only "next tool began" or "turn complete"; the correlator tracks the
// single open invocation explicitly and synthesizes the matching end events.
//
// Callbacks must come from the one goroutine driving the session. A single
// pump goroutine assigns sequence numbers and delivers to the sink, so
// delivery order always equals sequence order.
type Correlator struct {
	sink  Sink
	now   func() time.Time
	queue chan Event

	// open is the current-open-invocation slot, nil when no tool runs.
	open *openInvocation

	stopped bool
	seq     int64

	done    chan struct{}
	sendErr error
}

type openInvocation struct {
	id     string
	tool   string
	start  time.Time
	output string
}

// NewCorrelator creates a Correlator delivering to sink and starts its
// delivery pump. Callers must Close it to drain the queue.
func NewCorrelator(sink Sink) *Correlator {
	return newCorrelator(sink, time.Now)
}

// NewCorrelatorAt creates a Correlator whose sequence continues after last.
// Follow-up runs in one session pass the previous run's Seq so the session
// keeps a single monotonic counter.
func NewCorrelatorAt(sink Sink, last int64) *Correlator {
	c := newCorrelator(sink, time.Now)
	c.seq = last
	return c
}

// Seq returns the last assigned sequence number. Valid to read from the
// driving goroutine once no further callbacks will fire.
func (c *Correlator) Seq() int64 { return c.seq }

func newCorrelator(sink Sink, now func() time.Time) *Correlator {
	c := &Correlator{
		sink:  sink,
		now:   now,
		queue: make(chan Event, 64),
		done:  make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *Correlator) pump() {
	defer close(c.done)
	for ev := range c.queue {
		if c.sendErr != nil {
			continue // keep draining so producers never block
		}
		if err := c.sink.Send(ev); err != nil {
			c.sendErr = err
		}
	}
}

// Close drains pending events and returns the first sink delivery error, if
// any. No callback may be invoked after Close.
func (c *Correlator) Close() error {
	close(c.queue)
	<-c.done
	return c.sendErr
}

func (c *Correlator) emit(kind Kind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.seq++
	observability.RecordEvent(string(kind))
	c.queue <- Event{Seq: c.seq, Type: kind, Data: data}
}

// OnText forwards one streamed text fragment.
func (c *Correlator) OnText(text string) {
	if c.stopped {
		return
	}
	c.emit(KindText, TextData{Content: text})
}

// OnToolUse records that a new tool began. If a previous tool is still open
// it is closed first, since the upstream only ever signals the next start.
func (c *Correlator) OnToolUse(name string, input map[string]any) {
	if c.stopped {
		return
	}
	c.closeOpen()

	inv := &openInvocation{
		id:    uuid.New().String(),
		tool:  name,
		start: c.now(),
	}
	c.open = inv
	c.emit(KindToolStart, ToolStartData{ID: inv.id, Tool: name, Input: input})

	// Delegation fans out to workers: announce each one at tool start,
	// even though their outcomes only arrive with the tool's own result.
	if name == tools.NameDelegate {
		for _, agentType := range stringList(input["agent_types"]) {
			c.emit(KindSubagentStart, SubagentStartData{AgentType: agentType})
		}
	}
}

// OnToolResult captures a tool's output for its eventual tool_end event and
// derives subagent_end events from delegation results.
func (c *Correlator) OnToolResult(name string, output tools.Output) {
	if c.stopped {
		return
	}
	if c.open != nil && c.open.tool == name {
		preview := output.Text
		if len(preview) > toolOutputPreview {
			preview = preview[:toolOutputPreview] + "..."
		}
		c.open.output = preview
	}

	if name != tools.NameDelegate {
		return
	}
	results, ok := output.Data.([]subagent.Result)
	if !ok {
		return
	}
	for _, res := range results {
		c.emit(KindSubagentEnd, SubagentEndData{
			AgentType: res.AgentType,
			Analysis:  res.Analysis,
			Success:   res.Success,
			Error:     res.Error,
		})
	}
}

// OnComplete closes any still-open tool and emits the terminal complete
// event. The correlator accepts nothing further for this session.
func (c *Correlator) OnComplete(result agent.Result) {
	if c.stopped {
		return
	}
	c.closeOpen()
	c.emit(KindComplete, CompleteData{
		Text:       result.Text,
		SessionID:  result.SessionID,
		DurationMs: result.DurationMs,
		NumTurns:   result.NumTurns,
	})
	c.stopped = true
}

// Fail emits exactly one error event and stops the sequence. It does not
// retry anything.
func (c *Correlator) Fail(err error) {
	if c.stopped {
		return
	}
	c.closeOpen()
	c.emit(KindError, ErrorData{Message: err.Error(), Code: ErrorCode})
	c.stopped = true
}

func (c *Correlator) closeOpen() {
	if c.open == nil {
		return
	}
	inv := c.open
	c.open = nil
	c.emit(KindToolEnd, ToolEndData{
		ID:         inv.id,
		Tool:       inv.tool,
		DurationMs: c.now().Sub(inv.start).Milliseconds(),
		Output:     inv.output,
	})
}

func stringList(v any) []string {
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
