package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robin-osint/robin/internal/monitor"
	"github.com/robin-osint/robin/pkg/observability"
)

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run recurring investigations from configured schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flagConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(app.cfg.Monitor.Jobs) == 0 {
				return fmt.Errorf("no monitor jobs configured")
			}

			mon := monitor.New(app.svc, app.logger, nil)
			for _, job := range app.cfg.Monitor.Jobs {
				if err := mon.Add(monitor.Job{
					Name:     job.Name,
					Schedule: job.Schedule,
					Query:    job.Query,
				}); err != nil {
					return err
				}
			}

			healthChecker := observability.InitHealthChecker()
			healthChecker.RegisterCheck(observability.TorCheck(app.tor.Ping))
			healthChecker.RegisterCheck(observability.StoreCheck(app.store.Ping))

			obsServer := observability.NewServer(app.cfg.Observability.Port)
			go func() {
				if err := obsServer.Start(); err != nil {
					app.logger.Error("observability server error", zap.Error(err))
				}
			}()

			mon.Start()
			app.logger.Info("monitor running",
				zap.Int("jobs", len(app.cfg.Monitor.Jobs)),
				zap.Int("port", app.cfg.Observability.Port))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := mon.Stop(shutdownCtx); err != nil {
				app.logger.Warn("monitor stop", zap.Error(err))
			}
			if err := obsServer.Shutdown(shutdownCtx); err != nil {
				app.logger.Warn("observability server shutdown", zap.Error(err))
			}
			return nil
		},
	}
}
