package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/robin-osint/robin/internal/events"
)

// consoleSink renders the ordered event stream for a terminal. Text
// fragments stream inline; lifecycle events get their own lines.
type consoleSink struct {
	w        io.Writer
	jsonMode bool
	// midText tracks whether the cursor sits inside a streamed paragraph,
	// so lifecycle lines start on a fresh line.
	midText bool
}

func newConsoleSink(w io.Writer, jsonMode bool) *consoleSink {
	return &consoleSink{w: w, jsonMode: jsonMode}
}

func (s *consoleSink) Send(ev events.Event) error {
	if s.jsonMode {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.w, string(line))
		return err
	}

	switch ev.Type {
	case events.KindText:
		var d events.TextData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		s.midText = true
		_, err := fmt.Fprint(s.w, d.Content)
		return err

	case events.KindToolStart:
		var d events.ToolStartData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		s.breakLine()
		_, err := fmt.Fprintf(s.w, "⚙ %s ...\n", d.Tool)
		return err

	case events.KindToolEnd:
		var d events.ToolEndData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		s.breakLine()
		_, err := fmt.Fprintf(s.w, "✓ %s (%dms)\n", d.Tool, d.DurationMs)
		return err

	case events.KindSubagentStart:
		var d events.SubagentStartData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		s.breakLine()
		_, err := fmt.Fprintf(s.w, "  ↳ %s analyzing...\n", d.AgentType)
		return err

	case events.KindSubagentEnd:
		var d events.SubagentEndData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		s.breakLine()
		status := "done"
		if !d.Success {
			status = "failed: " + d.Error
		}
		_, err := fmt.Fprintf(s.w, "  ↳ %s %s\n", d.AgentType, status)
		return err

	case events.KindComplete:
		var d events.CompleteData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		s.breakLine()
		_, err := fmt.Fprintf(s.w, "\n✓ complete (%d turns, %dms)\n", d.NumTurns, d.DurationMs)
		return err

	case events.KindError:
		var d events.ErrorData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		s.breakLine()
		_, err := fmt.Fprintf(s.w, "✗ %s: %s\n", d.Code, d.Message)
		return err
	}

	return nil
}

func (s *consoleSink) breakLine() {
	if s.midText {
		fmt.Fprintln(s.w)
		s.midText = false
	}
}
