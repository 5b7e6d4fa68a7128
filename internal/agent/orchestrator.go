// Package agent owns one investigation's lifecycle: it issues the driving
// request to the reasoning engine, interprets the streamed output into
// callbacks, tracks the tool-use log, and exposes session-resume state.
package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/robin-osint/robin/internal/engine"
	"github.com/robin-osint/robin/internal/tools"
)

// Status is an investigation's lifecycle state. Terminal states absorb: no
// transitions leave Completed or Failed within one run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ToolUse is one entry of the ordered tool activity log, in the exact order
// the engine announced invocations.
type ToolUse struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Result summarizes one completed investigation turn.
type Result struct {
	Text       string
	SessionID  string
	DurationMs int64
	NumTurns   int
	ToolsUsed  []ToolUse
}

// Callbacks receive progress signals while an investigation runs. All
// callbacks fire from the single goroutine consuming the engine stream.
type Callbacks struct {
	// OnText receives each streamed text fragment.
	OnText func(text string)
	// OnToolUse fires when the engine announces a tool invocation.
	OnToolUse func(name string, input map[string]any)
	// OnToolResult fires when an announced invocation's output arrives.
	OnToolResult func(name string, output tools.Output)
	// OnComplete fires once with the aggregate result.
	OnComplete func(result Result)
}

// Options fixes the engine request parameters for every query an
// Orchestrator issues.
type Options struct {
	Model        string
	MaxTurns     int
	SystemPrompt string
	Tools        *tools.Registry
}

// Orchestrator drives investigations against a reasoning engine with
// session continuity. It is not safe for concurrent use: one goroutine owns
// one Orchestrator, per session.
type Orchestrator struct {
	engine    engine.Engine
	opts      Options
	callbacks Callbacks

	status    Status
	sessionID string
	toolsUsed []ToolUse
}

// New creates an Orchestrator. A zero SystemPrompt falls back to the
// built-in investigation directive.
func New(eng engine.Engine, opts Options, callbacks Callbacks) *Orchestrator {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = SystemPrompt
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = engine.DefaultMaxTurns
	}
	return &Orchestrator{
		engine:    eng,
		opts:      opts,
		callbacks: callbacks,
		status:    StatusPending,
	}
}

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() Status { return o.status }

// SessionID returns the continuation token of the current session, empty
// until the engine has issued one.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// ToolsUsed returns the ordered tool activity log of the last run.
func (o *Orchestrator) ToolsUsed() []ToolUse {
	out := make([]ToolUse, len(o.toolsUsed))
	copy(out, o.toolsUsed)
	return out
}

// ResetSession clears the continuation token and activity log so the next
// Investigate call starts a fresh, unrelated session.
func (o *Orchestrator) ResetSession() {
	o.sessionID = ""
	o.toolsUsed = nil
	o.status = StatusPending
}

// Investigate runs one investigation query. When a prior session id is
// held, the engine resumes that session with all prior context; otherwise a
// new session starts. Either way the caller sees the same code path.
func (o *Orchestrator) Investigate(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("orchestrator: empty query")
	}

	o.status = StatusRunning
	o.toolsUsed = nil

	stream, err := o.engine.Query(ctx, engine.Request{
		Prompt:       query,
		Model:        o.opts.Model,
		SystemPrompt: o.opts.SystemPrompt,
		MaxTurns:     o.opts.MaxTurns,
		Resume:       o.sessionID,
		Tools:        o.opts.Tools,
	})
	if err != nil {
		o.status = StatusFailed
		return Result{}, fmt.Errorf("start session: %w", err)
	}
	defer func() { _ = stream.Close() }()

	result, err := o.consume(stream)
	if err != nil {
		o.status = StatusFailed
		return Result{}, err
	}

	o.status = StatusCompleted
	if o.callbacks.OnComplete != nil {
		o.callbacks.OnComplete(result)
	}
	return result, nil
}

// FollowUp sends a follow-up query in the same session. It is Investigate
// under another name: the presence of a continuation token is an internal
// detail, not a separate path.
func (o *Orchestrator) FollowUp(ctx context.Context, query string) (Result, error) {
	return o.Investigate(ctx, query)
}

// consume drains the engine stream, firing callbacks and accumulating the
// response. Stream exhaustion without a terminal summary still finalizes
// from whatever was accumulated.
func (o *Orchestrator) consume(stream engine.Stream) (Result, error) {
	var full strings.Builder
	var final *engine.Message

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("session stream: %w", err)
		}

		switch msg.Type {
		case engine.MessageInit:
			o.sessionID = msg.SessionID

		case engine.MessageText:
			full.WriteString(msg.Text)
			if o.callbacks.OnText != nil {
				o.callbacks.OnText(msg.Text)
			}

		case engine.MessageToolUse:
			o.toolsUsed = append(o.toolsUsed, ToolUse{Name: msg.ToolName, Input: msg.ToolInput})
			if o.callbacks.OnToolUse != nil {
				o.callbacks.OnToolUse(msg.ToolName, msg.ToolInput)
			}

		case engine.MessageToolResult:
			if o.callbacks.OnToolResult != nil {
				o.callbacks.OnToolResult(msg.ToolName, msg.ToolOutput)
			}

		case engine.MessageResult:
			final = msg
			if msg.SessionID != "" {
				o.sessionID = msg.SessionID
			}
		}
	}

	result := Result{
		SessionID: o.sessionID,
		ToolsUsed: o.ToolsUsed(),
	}
	if final != nil {
		// Some engines repeat already-streamed text in the terminal
		// summary. Substring containment is a known approximation of
		// "already seen"; a rephrased final chunk will be appended.
		if final.Text != "" && !strings.Contains(full.String(), final.Text) {
			full.WriteString(final.Text)
			if o.callbacks.OnText != nil {
				o.callbacks.OnText(final.Text)
			}
		}
		result.DurationMs = final.DurationMs
		result.NumTurns = final.NumTurns
	}
	result.Text = full.String()
	return result, nil
}
