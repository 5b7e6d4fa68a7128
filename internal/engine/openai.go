package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/robin-osint/robin/internal/tools"
)

const defaultOpenAIModel = openai.GPT4o

func init() {
	RegisterFactory("openai", func(config map[string]any) (Engine, error) {
		apiKey, _ := config["api_key"].(string)
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}

		cfg := openai.DefaultConfig(apiKey)
		if baseURL, ok := config["base_url"].(string); ok && baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return NewOpenAIEngine(openai.NewClientWithConfig(cfg)), nil
	})
}

// OpenAIEngine drives reasoning sessions over the OpenAI chat completions
// API with streamed tool calling. Conversation history is held per
// continuation token, so a resumed request carries all prior context without
// the caller replaying anything.
type OpenAIEngine struct {
	client *openai.Client

	mu        sync.Mutex
	histories map[string][]openai.ChatCompletionMessage
}

// NewOpenAIEngine creates an OpenAI-backed engine.
func NewOpenAIEngine(client *openai.Client) *OpenAIEngine {
	return &OpenAIEngine{
		client:    client,
		histories: make(map[string][]openai.ChatCompletionMessage),
	}
}

// Name returns "openai".
func (e *OpenAIEngine) Name() string { return "openai" }

// Query starts or resumes a session and streams its messages.
func (e *OpenAIEngine) Query(ctx context.Context, req Request) (Stream, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("engine: empty prompt")
	}

	sessionID := req.Resume
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	history := e.history(sessionID)
	if len(history) == 0 && req.SystemPrompt != "" {
		history = append(history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	history = append(history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	p := newPipe()
	go e.run(ctx, req, sessionID, history, p)
	return p, nil
}

func (e *OpenAIEngine) run(ctx context.Context, req Request, sessionID string, history []openai.ChatCompletionMessage, p *pipe) {
	defer p.finish()

	start := time.Now()
	if !p.send(&Message{Type: MessageInit, SessionID: sessionID}) {
		return
	}

	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	declared := declareTools(req.Tools)

	turns := 0
	var lastText string
	for turns < maxTurns {
		turns++

		text, calls, err := e.streamTurn(ctx, model, history, declared, p)
		if err != nil {
			p.fail(fmt.Errorf("engine turn %d: %w", turns, err))
			return
		}
		lastText = text

		assistant := openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   text,
			ToolCalls: calls,
		}
		history = append(history, assistant)

		if len(calls) == 0 {
			break
		}

		for _, call := range calls {
			history = append(history, e.invokeTool(ctx, req, call, p))
		}
	}

	e.saveHistory(sessionID, history)

	p.send(&Message{
		Type:       MessageResult,
		SessionID:  sessionID,
		Text:       lastText,
		DurationMs: time.Since(start).Milliseconds(),
		NumTurns:   turns,
	})
}

// streamTurn runs one streamed completion, forwarding text deltas as they
// arrive and assembling any tool calls from their deltas.
func (e *OpenAIEngine) streamTurn(ctx context.Context, model string, history []openai.ChatCompletionMessage, declared []openai.Tool, p *pipe) (string, []openai.ToolCall, error) {
	stream, err := e.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: history,
		Tools:    declared,
		Stream:   true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("create stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var text strings.Builder
	var calls []openai.ToolCall
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !p.send(&Message{Type: MessageText, Text: delta.Content}) {
				return "", nil, errors.New("stream closed by consumer")
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(calls) <= idx {
				calls = append(calls, openai.ToolCall{Type: openai.ToolTypeFunction})
			}
			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Function.Name += tc.Function.Name
			}
			calls[idx].Function.Arguments += tc.Function.Arguments
		}
	}
	return text.String(), calls, nil
}

// invokeTool announces, executes, and reports one tool call, returning the
// tool message to append to the conversation. A failing tool feeds its error
// text back to the model instead of aborting the session.
func (e *OpenAIEngine) invokeTool(ctx context.Context, req Request, call openai.ToolCall, p *pipe) openai.ChatCompletionMessage {
	input := make(map[string]any)
	if call.Function.Arguments != "" {
		// Malformed arguments still produce a ToolUse announcement; the
		// handler reports the problem back to the model.
		_ = json.Unmarshal([]byte(call.Function.Arguments), &input)
	}

	p.send(&Message{Type: MessageToolUse, ToolName: call.Function.Name, ToolInput: input})

	out, err := req.Tools.Call(ctx, call.Function.Name, tools.Args(input))
	content := out.Text
	if err != nil {
		content = "Tool error: " + err.Error()
		out = tools.Output{Text: content}
	}

	p.send(&Message{Type: MessageToolResult, ToolName: call.Function.Name, ToolInput: input, ToolOutput: out})

	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    content,
		ToolCallID: call.ID,
	}
}

// declareTools converts the capability table into OpenAI tool declarations.
func declareTools(registry *tools.Registry) []openai.Tool {
	if registry == nil {
		return nil
	}
	list := registry.List()
	out := make([]openai.Tool, 0, len(list))
	for _, t := range list {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema.JSONSchema(),
			},
		})
	}
	return out
}

func (e *OpenAIEngine) history(sessionID string) []openai.ChatCompletionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := e.histories[sessionID]
	out := make([]openai.ChatCompletionMessage, len(stored))
	copy(out, stored)
	return out
}

func (e *OpenAIEngine) saveHistory(sessionID string, history []openai.ChatCompletionMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.histories[sessionID] = history
}
