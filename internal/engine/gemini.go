package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robin-osint/robin/internal/tools"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiMaxRetries   = 3
	defaultGeminiModel = "gemini-1.5-pro"
)

func init() {
	RegisterFactory("gemini", func(config map[string]any) (Engine, error) {
		apiKey, _ := config["api_key"].(string)
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY not set")
		}

		baseURL := geminiBaseURL
		if url, ok := config["base_url"].(string); ok && url != "" {
			baseURL = url
		}
		return NewGeminiEngine(apiKey, baseURL), nil
	})
}

// GeminiEngine drives reasoning sessions over the Gemini REST API with
// function calling. Each turn's text arrives as one fragment rather than
// token deltas; the message contract is otherwise identical to the OpenAI
// engine.
type GeminiEngine struct {
	apiKey  string
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	histories map[string][]geminiContent
}

// NewGeminiEngine creates a Gemini-backed engine.
func NewGeminiEngine(apiKey, baseURL string) *GeminiEngine {
	return &GeminiEngine{
		apiKey:    apiKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 120 * time.Second},
		histories: make(map[string][]geminiContent),
	}
}

// Name returns "gemini".
func (e *GeminiEngine) Name() string { return "gemini" }

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string          `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
	FunctionResp *geminiFuncResp `json:"functionResponse,omitempty"`
}

type geminiFuncCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFuncResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFuncDecl `json:"functionDeclarations,omitempty"`
}

type geminiFuncDecl struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Query starts or resumes a session and streams its messages.
func (e *GeminiEngine) Query(ctx context.Context, req Request) (Stream, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("engine: empty prompt")
	}

	sessionID := req.Resume
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	history := e.history(sessionID)
	history = append(history, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: req.Prompt}},
	})

	p := newPipe()
	go e.run(ctx, req, sessionID, history, p)
	return p, nil
}

func (e *GeminiEngine) run(ctx context.Context, req Request, sessionID string, history []geminiContent, p *pipe) {
	defer p.finish()

	start := time.Now()
	if !p.send(&Message{Type: MessageInit, SessionID: sessionID}) {
		return
	}

	model := req.Model
	if model == "" {
		model = defaultGeminiModel
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	var system *geminiContent
	if req.SystemPrompt != "" {
		system = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	declared := e.declareTools(req.Tools)

	turns := 0
	var lastText string
	for turns < maxTurns {
		turns++

		gReq := geminiRequest{Contents: history, SystemInstruction: system, Tools: declared}
		endpoint := fmt.Sprintf("/models/%s:generateContent?key=%s", model, e.apiKey)

		var resp geminiResponse
		if err := e.doRequestWithRetry(ctx, endpoint, gReq, &resp); err != nil {
			p.fail(fmt.Errorf("engine turn %d: %w", turns, err))
			return
		}
		if len(resp.Candidates) == 0 {
			p.fail(fmt.Errorf("engine turn %d: no candidates in response", turns))
			return
		}

		content := resp.Candidates[0].Content
		content.Role = "model"
		history = append(history, content)

		var calls []geminiFuncCall
		for _, part := range content.Parts {
			if part.Text != "" {
				lastText = part.Text
				if !p.send(&Message{Type: MessageText, Text: part.Text}) {
					return
				}
			}
			if part.FunctionCall != nil {
				calls = append(calls, *part.FunctionCall)
			}
		}

		if len(calls) == 0 {
			break
		}

		var responses []geminiPart
		for _, call := range calls {
			responses = append(responses, e.invokeTool(ctx, req, call, p))
		}
		history = append(history, geminiContent{Role: "user", Parts: responses})
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

func (e *GeminiEngine) invokeTool(ctx context.Context, req Request, call geminiFuncCall, p *pipe) geminiPart {
	input := call.Args
	if input == nil {
		input = make(map[string]any)
	}

	p.send(&Message{Type: MessageToolUse, ToolName: call.Name, ToolInput: input})

	out, err := req.Tools.Call(ctx, call.Name, tools.Args(input))
	content := out.Text
	if err != nil {
		content = "Tool error: " + err.Error()
		out = tools.Output{Text: content}
	}

	p.send(&Message{Type: MessageToolResult, ToolName: call.Name, ToolInput: input, ToolOutput: out})

	return geminiPart{FunctionResp: &geminiFuncResp{
		Name:     call.Name,
		Response: map[string]any{"content": content},
	}}
}

func (e *GeminiEngine) declareTools(registry *tools.Registry) []geminiTool {
	if registry == nil {
		return nil
	}
	list := registry.List()
	decls := make([]geminiFuncDecl, 0, len(list))
	for _, t := range list {
		var params any
		_ = json.Unmarshal(t.Schema.JSONSchema(), &params)
		decls = append(decls, geminiFuncDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

func (e *GeminiEngine) doRequestWithRetry(ctx context.Context, endpoint string, reqBody any, result any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("gemini request: %w", err)
			continue
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			lastErr = geminiError(resp.StatusCode, respBody)
			if retryable {
				continue
			}
			return lastErr
		}

		err = json.NewDecoder(resp.Body).Decode(result)
		_ = resp.Body.Close()
		return err
	}
	return lastErr
}

func geminiError(status int, body []byte) error {
	var errResp geminiResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("gemini: %s (status %d, %s)", errResp.Error.Message, status, errResp.Error.Status)
	}
	return fmt.Errorf("gemini: status %d: %s", status, string(body))
}

func (e *GeminiEngine) history(sessionID string) []geminiContent {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := e.histories[sessionID]
	out := make([]geminiContent, len(stored))
	copy(out, stored)
	return out
}

func (e *GeminiEngine) saveHistory(sessionID string, history []geminiContent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.histories[sessionID] = history
}
