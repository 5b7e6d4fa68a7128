// Package engine defines the reasoning engine boundary: an engine accepts an
// investigation request plus a capability table and yields a stream of typed
// messages (text fragments, tool invocations, tool results, a terminal
// summary). Session continuity is the engine's responsibility, keyed by an
// opaque continuation token.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/robin-osint/robin/internal/tools"
)

// DefaultMaxTurns caps how many reasoning turns a single request may take.
const DefaultMaxTurns = 15

// Request drives one reasoning session.
type Request struct {
	// Prompt is the user query for this turn.
	Prompt string
	// Model identifies the model to use.
	Model string
	// SystemPrompt is the fixed system directive.
	SystemPrompt string
	// MaxTurns bounds the reasoning loop (0 = DefaultMaxTurns).
	MaxTurns int
	// Resume is the continuation token of a prior session; empty starts a
	// fresh session.
	Resume string
	// Tools is the capability table the engine may invoke.
	Tools *tools.Registry
}

// MessageType discriminates streamed messages.
type MessageType string

const (
	// MessageInit is the first message of every stream and carries the
	// continuation token for future resumption.
	MessageInit MessageType = "init"
	// MessageText is a streamed text fragment.
	MessageText MessageType = "text"
	// MessageToolUse announces a tool invocation (name + input).
	MessageToolUse MessageType = "tool_use"
	// MessageToolResult carries a tool invocation's output.
	MessageToolResult MessageType = "tool_result"
	// MessageResult is the terminal summary.
	MessageResult MessageType = "result"
)

// Message is one unit of a reasoning stream.
type Message struct {
	Type MessageType

	// SessionID is set on Init and Result.
	SessionID string

	// Text is the fragment (Text) or the final result text (Result). The
	// final text may repeat already-streamed text; consumers deduplicate.
	Text string

	// ToolName and ToolInput are set on ToolUse and ToolResult.
	ToolName  string
	ToolInput map[string]any

	// ToolOutput is set on ToolResult.
	ToolOutput tools.Output

	// DurationMs and NumTurns are set on Result.
	DurationMs int64
	NumTurns   int
}

// Stream yields Messages until exhaustion (io.EOF) or failure.
type Stream interface {
	// Recv returns the next message, io.EOF after the last one, or the
	// stream's failure.
	Recv() (*Message, error)

	// Close releases the stream. Pending work runs to completion and is
	// discarded.
	Close() error
}

// Engine is the reasoning engine boundary.
type Engine interface {
	// Query starts or resumes a reasoning session.
	Query(ctx context.Context, req Request) (Stream, error)

	// Name returns the engine name (e.g. "openai", "gemini").
	Name() string
}

// Factory builds an Engine from configuration.
type Factory func(config map[string]any) (Engine, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers an engine factory under name.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New builds the named engine.
func New(name string, config map[string]any) (Engine, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s", name)
	}
	return f(config)
}
