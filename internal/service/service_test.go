package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/robin-osint/robin/internal/engine"
	"github.com/robin-osint/robin/internal/events"
	"github.com/robin-osint/robin/internal/subagent"
	"github.com/robin-osint/robin/internal/tools"
	"github.com/robin-osint/robin/pkg/store"
)

type scriptStream struct {
	msgs []*engine.Message
	pos  int
}

func (s *scriptStream) Recv() (*engine.Message, error) {
	if s.pos >= len(s.msgs) {
		return nil, io.EOF
	}
	msg := s.msgs[s.pos]
	s.pos++
	return msg, nil
}

func (s *scriptStream) Close() error { return nil }

type scriptEngine struct {
	msgs     []*engine.Message
	queryErr error
}

func (e *scriptEngine) Query(ctx context.Context, req engine.Request) (engine.Stream, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return &scriptStream{msgs: e.msgs}, nil
}

func (e *scriptEngine) Name() string { return "script" }

type recordingSink struct {
	mu    sync.Mutex
	kinds []events.Kind
	seqs  []int64
}

func (s *recordingSink) Send(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, ev.Type)
	s.seqs = append(s.seqs, ev.Seq)
	return nil
}

func emptyRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Name:    "noop",
		Handler: func(ctx context.Context, args tools.Args) (tools.Output, error) { return tools.Output{}, nil },
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r
}

func newTestService(t *testing.T, eng engine.Engine) (*Service, store.Backend) {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	svc, err := New(Options{
		Engine: eng,
		Tools:  emptyRegistry(t),
		Store:  backend,
		Model:  "test-model",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc, backend
}

func TestServiceRunCompletesAndPersists(t *testing.T) {
	eng := &scriptEngine{msgs: []*engine.Message{
		{Type: engine.MessageInit, SessionID: "sess-1"},
		{Type: engine.MessageText, Text: "report text"},
		{Type: engine.MessageResult, SessionID: "sess-1", Text: "report text", NumTurns: 2, DurationMs: 50},
	}}
	svc, backend := newTestService(t, eng)
	ctx := context.Background()

	inv, err := svc.Start(ctx, "find the leak")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer Remove(inv.ID)

	if Get(inv.ID) != inv {
		t.Error("Start() should register the investigation")
	}

	sink := &recordingSink{}
	result, err := inv.Run(ctx, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Text != "report text" {
		t.Errorf("Text = %q", result.Text)
	}

	rec, err := backend.Load(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.Status != store.StatusCompleted {
		t.Errorf("Status = %q, want completed", rec.Status)
	}
	if rec.Response != "report text" {
		t.Errorf("Response = %q", rec.Response)
	}
	if rec.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", rec.SessionID)
	}
	if rec.CompletedAt == nil {
		t.Error("CompletedAt not set on a finished record")
	}

	// The sink saw the streamed text and a terminal complete event.
	last := sink.kinds[len(sink.kinds)-1]
	if last != events.KindComplete {
		t.Errorf("last event = %s, want complete", last)
	}
}

func TestServiceRunFailurePersistsFailedState(t *testing.T) {
	eng := &scriptEngine{queryErr: errors.New("provider down")}
	svc, backend := newTestService(t, eng)
	ctx := context.Background()

	inv, err := svc.Start(ctx, "query")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer Remove(inv.ID)

	sink := &recordingSink{}
	if _, err := inv.Run(ctx, sink); err == nil {
		t.Fatal("Run() should surface the engine failure")
	}

	rec, err := backend.Load(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.Status != store.StatusFailed {
		t.Errorf("Status = %q, want failed", rec.Status)
	}

	// Exactly one terminal error event, nothing after it.
	if len(sink.kinds) != 1 || sink.kinds[0] != events.KindError {
		t.Errorf("sink kinds = %v, want [error]", sink.kinds)
	}
}

func TestServiceStartValidation(t *testing.T) {
	svc, _ := newTestService(t, &scriptEngine{})
	if _, err := svc.Start(context.Background(), ""); err == nil {
		t.Fatal("Start() with empty query should error")
	}
}

func TestServiceNewValidation(t *testing.T) {
	if _, err := New(Options{Tools: tools.NewRegistry()}); err == nil {
		t.Error("New() without engine should error")
	}
	if _, err := New(Options{Engine: &scriptEngine{}}); err == nil {
		t.Error("New() without tools should error")
	}
}

func TestRegistryPutGetRemove(t *testing.T) {
	inv := &Investigation{ID: "reg-test"}
	Put(inv)
	if Get("reg-test") != inv {
		t.Error("Get() should return the registered investigation")
	}
	Remove("reg-test")
	if Get("reg-test") != nil {
		t.Error("Get() after Remove should return nil")
	}
}

func TestServiceRunPersistsDelegationOutcomes(t *testing.T) {
	outcomes := []subagent.Result{
		{AgentType: "IOCExtractor", Analysis: "three onion domains", Success: true},
		{AgentType: "MalwareAnalyst", Success: false, Error: "model refused"},
	}
	eng := &scriptEngine{msgs: []*engine.Message{
		{Type: engine.MessageInit, SessionID: "sess-2"},
		{Type: engine.MessageToolUse, ToolName: tools.NameDelegate, ToolInput: map[string]any{
			"agent_types": []any{"IOCExtractor", "MalwareAnalyst"},
		}},
		{Type: engine.MessageToolResult, ToolName: tools.NameDelegate, ToolOutput: tools.Output{
			Text: "analysis done",
			Data: outcomes,
		}},
		{Type: engine.MessageResult, SessionID: "sess-2", Text: "report", NumTurns: 2},
	}}
	svc, backend := newTestService(t, eng)
	ctx := context.Background()

	inv, err := svc.Start(ctx, "trace the campaign")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer Remove(inv.ID)

	if _, err := inv.Run(ctx, &recordingSink{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, err := backend.Load(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rec.Subagents) != 2 {
		t.Fatalf("record has %d subagent outcomes, want 2", len(rec.Subagents))
	}
	for i, want := range outcomes {
		got := rec.Subagents[i]
		if got.AgentType != want.AgentType || got.Analysis != want.Analysis ||
			got.Success != want.Success || got.Error != want.Error {
			t.Errorf("Subagents[%d] = %+v, want %+v", i, got, want)
		}
	}

	// Reset discards the session and the outcomes with it.
	inv.Reset()
	if _, err := inv.Run(ctx, &recordingSink{}); err != nil {
		t.Fatalf("Run() after Reset error = %v", err)
	}
	rec, err = backend.Load(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rec.Subagents) != 2 {
		t.Errorf("record has %d subagent outcomes after re-run, want 2", len(rec.Subagents))
	}
}

func TestServiceFollowUpContinuesSequence(t *testing.T) {
	eng := &scriptEngine{msgs: []*engine.Message{
		{Type: engine.MessageInit, SessionID: "sess-3"},
		{Type: engine.MessageText, Text: "partial"},
		{Type: engine.MessageResult, SessionID: "sess-3", Text: "partial", NumTurns: 1},
	}}
	svc, _ := newTestService(t, eng)
	ctx := context.Background()

	inv, err := svc.Start(ctx, "initial query")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer Remove(inv.ID)

	sink := &recordingSink{}
	if _, err := inv.Run(ctx, sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := inv.FollowUp(ctx, "and then?", sink); err != nil {
		t.Fatalf("FollowUp() error = %v", err)
	}

	for i, seq := range sink.seqs {
		if want := int64(i + 1); seq != want {
			t.Errorf("event[%d].Seq = %d, want %d", i, seq, want)
		}
	}

	// A reset session starts a fresh counter.
	inv.Reset()
	fresh := &recordingSink{}
	if _, err := inv.Run(ctx, fresh); err != nil {
		t.Fatalf("Run() after Reset error = %v", err)
	}
	if len(fresh.seqs) == 0 || fresh.seqs[0] != 1 {
		t.Errorf("first seq after Reset = %v, want 1", fresh.seqs)
	}
}
