// Package service runs investigations end to end: it wires the reasoning
// engine, the tool registry, the event correlator, and the record store,
// and tracks live investigations in a process-wide registry.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robin-osint/robin/internal/agent"
	"github.com/robin-osint/robin/internal/engine"
	"github.com/robin-osint/robin/internal/events"
	"github.com/robin-osint/robin/internal/subagent"
	"github.com/robin-osint/robin/internal/tools"
	"github.com/robin-osint/robin/pkg/observability"
	"github.com/robin-osint/robin/pkg/store"
)

// Options configures a Service.
type Options struct {
	Engine   engine.Engine
	Tools    *tools.Registry
	Store    store.Backend
	Logger   *zap.Logger
	Model    string
	MaxTurns int
}

// Service coordinates investigations. One Service runs any number of
// investigations, each on its own goroutine.
type Service struct {
	engine   engine.Engine
	tools    *tools.Registry
	store    store.Backend
	logger   *zap.Logger
	model    string
	maxTurns int
}

// New creates a Service. Engine and Tools are required; Store and Logger
// may be nil, in which case persistence and logging are disabled.
func New(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("service: engine is required")
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("service: tool registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:   opts.Engine,
		tools:    opts.Tools,
		store:    opts.Store,
		logger:   logger,
		model:    opts.Model,
		maxTurns: opts.MaxTurns,
	}, nil
}

// Investigation is one live or finished investigation run. It owns the
// orchestrator so follow-up queries reuse the engine session. An
// Investigation is driven by one goroutine at a time.
type Investigation struct {
	ID    string
	Query string

	orchestrator *agent.Orchestrator
	svc          *Service
	createdAt    time.Time

	// corr is the correlator of the run in progress. The orchestrator's
	// callbacks forward to it; between runs it is nil.
	corr *events.Correlator

	// lastSeq is where the previous run's event sequence ended, so
	// follow-ups in the same session keep one monotonic counter.
	lastSeq int64

	// subagents accumulates delegation outcomes across runs of this
	// investigation, in the order the engine received them.
	subagents []store.WorkerOutcome
}

// Start begins a new investigation and registers it. The returned
// Investigation is already persisted in pending state.
func (s *Service) Start(ctx context.Context, query string) (*Investigation, error) {
	if query == "" {
		return nil, fmt.Errorf("service: query cannot be empty")
	}

	inv := &Investigation{
		ID:        uuid.NewString(),
		Query:     query,
		svc:       s,
		createdAt: time.Now().UTC(),
	}

	inv.orchestrator = agent.New(s.engine, agent.Options{
		Model:    s.model,
		MaxTurns: s.maxTurns,
		Tools:    s.tools,
	}, agent.Callbacks{
		OnText: func(text string) {
			if inv.corr != nil {
				inv.corr.OnText(text)
			}
		},
		OnToolUse: func(name string, input map[string]any) {
			if inv.corr != nil {
				inv.corr.OnToolUse(name, input)
			}
		},
		OnToolResult: func(name string, output tools.Output) {
			if name == tools.NameDelegate {
				if results, ok := output.Data.([]subagent.Result); ok {
					for _, res := range results {
						inv.subagents = append(inv.subagents, store.WorkerOutcome{
							AgentType: res.AgentType,
							Analysis:  res.Analysis,
							Success:   res.Success,
							Error:     res.Error,
						})
					}
				}
			}
			if inv.corr != nil {
				inv.corr.OnToolResult(name, output)
			}
		},
		OnComplete: func(result agent.Result) {
			if inv.corr != nil {
				inv.corr.OnComplete(result)
			}
		},
	})

	if err := s.snapshot(ctx, inv, store.StatusPending, nil, ""); err != nil {
		return nil, err
	}

	Put(inv)
	s.logger.Info("investigation registered",
		zap.String("id", inv.ID),
		zap.String("query", query))

	return inv, nil
}

// Run executes the investigation, streaming ordered events to sink.
// It blocks until the run completes or fails. The record store is
// updated at each lifecycle transition.
func (inv *Investigation) Run(ctx context.Context, sink events.Sink) (agent.Result, error) {
	return inv.run(ctx, inv.Query, sink)
}

// FollowUp runs a further query in the same engine session.
func (inv *Investigation) FollowUp(ctx context.Context, query string, sink events.Sink) (agent.Result, error) {
	if query == "" {
		return agent.Result{}, fmt.Errorf("service: query cannot be empty")
	}
	return inv.run(ctx, query, sink)
}

func (inv *Investigation) run(ctx context.Context, query string, sink events.Sink) (agent.Result, error) {
	s := inv.svc

	ctx, span := observability.StartSpan(ctx, "investigation.run")
	defer span.End()

	corr := events.NewCorrelatorAt(sink, inv.lastSeq)
	inv.corr = corr
	defer func() {
		inv.lastSeq = corr.Seq()
		inv.corr = nil
	}()

	if err := s.snapshot(ctx, inv, store.StatusRunning, nil, ""); err != nil {
		s.logger.Warn("record snapshot failed", zap.String("id", inv.ID), zap.Error(err))
	}

	start := time.Now()
	result, err := inv.orchestrator.Investigate(ctx, query)
	if err != nil {
		inv.corr.Fail(err)
		_ = inv.corr.Close()
		observability.RecordInvestigation("failed", time.Since(start))
		if serr := s.snapshot(ctx, inv, store.StatusFailed, nil, err.Error()); serr != nil {
			s.logger.Warn("record snapshot failed", zap.String("id", inv.ID), zap.Error(serr))
		}
		s.logger.Error("investigation failed",
			zap.String("id", inv.ID),
			zap.Error(err))
		return agent.Result{}, fmt.Errorf("investigation %s: %w", inv.ID, err)
	}

	if cerr := inv.corr.Close(); cerr != nil {
		// Event delivery failed downstream; the run itself succeeded.
		s.logger.Warn("event delivery error", zap.String("id", inv.ID), zap.Error(cerr))
	}

	observability.RecordInvestigation("completed", time.Since(start))
	if serr := s.snapshot(ctx, inv, store.StatusCompleted, &result, ""); serr != nil {
		s.logger.Warn("record snapshot failed", zap.String("id", inv.ID), zap.Error(serr))
	}

	s.logger.Info("investigation completed",
		zap.String("id", inv.ID),
		zap.String("session_id", result.SessionID),
		zap.Int("num_turns", result.NumTurns),
		zap.Int64("duration_ms", result.DurationMs))

	return result, nil
}

// Reset discards the engine session so the next run starts fresh. The
// accumulated delegation outcomes and the event sequence belong to the
// discarded session and go with it.
func (inv *Investigation) Reset() {
	inv.orchestrator.ResetSession()
	inv.subagents = nil
	inv.lastSeq = 0
}

// SessionID returns the engine session identifier, if one exists yet.
func (inv *Investigation) SessionID() string {
	return inv.orchestrator.SessionID()
}

// snapshot persists the investigation's current state.
func (s *Service) snapshot(ctx context.Context, inv *Investigation, status store.Status, result *agent.Result, errMsg string) error {
	if s.store == nil {
		return nil
	}

	rec := &store.Record{
		ID:        inv.ID,
		Query:     inv.Query,
		Model:     s.model,
		Status:    status,
		SessionID: inv.orchestrator.SessionID(),
		Subagents: append([]store.WorkerOutcome(nil), inv.subagents...),
		CreatedAt: inv.createdAt,
	}

	if result != nil {
		rec.Response = result.Text
		rec.NumTurns = result.NumTurns
		rec.DurationMs = result.DurationMs
		for _, tu := range result.ToolsUsed {
			rec.ToolsUsed = append(rec.ToolsUsed, store.ToolCall{Name: tu.Name, Input: tu.Input})
		}
	}
	if errMsg != "" {
		rec.Response = errMsg
	}
	if status == store.StatusCompleted || status == store.StatusFailed {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save investigation record: %w", err)
	}
	return nil
}
