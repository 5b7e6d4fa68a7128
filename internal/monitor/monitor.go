// Package monitor runs recurring investigations on cron schedules, for
// standing intelligence requirements like tracking a threat actor or a
// marketplace over time.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/robin-osint/robin/internal/events"
	"github.com/robin-osint/robin/internal/service"
)

// Job is one recurring investigation.
type Job struct {
	Name     string
	Schedule string // standard 5-field cron expression
	Query    string
}

// Monitor schedules and runs jobs. Each firing starts a fresh
// investigation; sessions are not carried between firings.
type Monitor struct {
	svc    *service.Service
	logger *zap.Logger
	cron   *cron.Cron
	sink   events.Sink
}

// New creates a Monitor. Events from scheduled runs go to sink; a nil
// sink discards them and runs are observable through logs and the store.
func New(svc *service.Service, logger *zap.Logger, sink events.Sink) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = events.SinkFunc(func(events.Event) error { return nil })
	}
	return &Monitor{
		svc:    svc,
		logger: logger,
		cron:   cron.New(),
		sink:   sink,
	}
}

// Add registers a job. Returns an error for an invalid cron expression.
func (m *Monitor) Add(job Job) error {
	if job.Query == "" {
		return fmt.Errorf("monitor: job %q has no query", job.Name)
	}

	_, err := m.cron.AddFunc(job.Schedule, func() {
		m.fire(job)
	})
	if err != nil {
		return fmt.Errorf("monitor: schedule job %q: %w", job.Name, err)
	}

	m.logger.Info("monitor job registered",
		zap.String("job", job.Name),
		zap.String("schedule", job.Schedule))
	return nil
}

// Start begins firing schedules. It does not block.
func (m *Monitor) Start() {
	m.cron.Start()
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	done := m.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) fire(job Job) {
	ctx := context.Background()
	started := time.Now()

	m.logger.Info("monitor job firing", zap.String("job", job.Name))

	inv, err := m.svc.Start(ctx, job.Query)
	if err != nil {
		m.logger.Error("monitor job start failed",
			zap.String("job", job.Name),
			zap.Error(err))
		return
	}
	defer service.Remove(inv.ID)

	result, err := inv.Run(ctx, m.sink)
	if err != nil {
		m.logger.Error("monitor job failed",
			zap.String("job", job.Name),
			zap.String("investigation_id", inv.ID),
			zap.Error(err))
		return
	}

	m.logger.Info("monitor job completed",
		zap.String("job", job.Name),
		zap.String("investigation_id", inv.ID),
		zap.Int("num_turns", result.NumTurns),
		zap.Duration("elapsed", time.Since(started)))
}
