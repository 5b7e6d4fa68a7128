package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robin-osint/robin/internal/service"
)

func newInvestigateCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "investigate <query>",
		Short: "Run a one-shot investigation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			app, err := newApp(flagConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			inv, err := app.svc.Start(ctx, query)
			if err != nil {
				return err
			}
			defer service.Remove(inv.ID)

			sink := newConsoleSink(os.Stdout, jsonOut)
			result, err := inv.Run(ctx, sink)
			if err != nil {
				return err
			}

			if !jsonOut {
				fmt.Printf("session: %s\n", result.SessionID)
			}
			app.logger.Info("run finished",
				zap.String("id", inv.ID),
				zap.Int("tools_used", len(result.ToolsUsed)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit events as JSON lines")
	return cmd
}
