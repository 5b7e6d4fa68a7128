// Package events turns the orchestrator's callback signals into one totally
// ordered event sequence with stable identifiers, consumable by any push
// transport.
package events

import (
	"encoding/json"
)

// Kind identifies an event type on the wire.
type Kind string

const (
	KindText          Kind = "text"
	KindToolStart     Kind = "tool_start"
	KindToolEnd       Kind = "tool_end"
	KindSubagentStart Kind = "subagent_start"
	KindSubagentEnd   Kind = "subagent_end"
	KindComplete      Kind = "complete"
	KindError         Kind = "error"
)

// Event is one immutable entry of a session's event sequence. Seq is
// strictly increasing per session and delivery order must equal Seq order.
type Event struct {
	Seq  int64           `json:"seq"`
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Sink receives events in sequence order. Send must not reorder; a Send
// error stops delivery for the session.
type Sink interface {
	Send(event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event) error

// Send calls f.
func (f SinkFunc) Send(event Event) error { return f(event) }

// TextData is the payload of a text event.
type TextData struct {
	Content string `json:"content"`
}

// ToolStartData is the payload of a tool_start event.
type ToolStartData struct {
	ID    string         `json:"id"`
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// ToolEndData is the payload of a tool_end event. The ID always references
// a previously emitted tool_start in the same session.
type ToolEndData struct {
	ID         string `json:"id"`
	Tool       string `json:"tool"`
	DurationMs int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
}

// SubagentStartData is the payload of a subagent_start event.
type SubagentStartData struct {
	AgentType string `json:"agent_type"`
}

// SubagentEndData is the payload of a subagent_end event.
type SubagentEndData struct {
	AgentType string `json:"agent_type"`
	Analysis  string `json:"analysis"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// CompleteData is the payload of the terminal complete event.
type CompleteData struct {
	Text       string `json:"text"`
	SessionID  string `json:"session_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	NumTurns   int    `json:"num_turns,omitempty"`
}

// ErrorCode is the generic code carried by error events.
const ErrorCode = "INVESTIGATION_ERROR"

// ErrorData is the payload of the terminal error event.
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
