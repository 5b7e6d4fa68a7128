package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robin-osint/robin/pkg/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored investigations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flagConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no stored investigations")
				return nil
			}

			for _, rec := range records {
				fmt.Printf("%s  %-9s  %s  %s\n",
					rec.CreatedAt.Format("2006-01-02 15:04"),
					rec.Status,
					rec.ID,
					truncate(rec.Query, 60))
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flagConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			rec, err := app.store.Load(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no investigation with id %s", args[0])
				}
				return err
			}

			fmt.Printf("id:       %s\n", rec.ID)
			fmt.Printf("status:   %s\n", rec.Status)
			fmt.Printf("query:    %s\n", rec.Query)
			fmt.Printf("created:  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
			if rec.CompletedAt != nil {
				fmt.Printf("finished: %s\n", rec.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			if len(rec.ToolsUsed) > 0 {
				names := make([]string, len(rec.ToolsUsed))
				for i, t := range rec.ToolsUsed {
					names[i] = t.Name
				}
				fmt.Printf("tools:    %s\n", strings.Join(names, ", "))
			}
			if rec.Response != "" {
				fmt.Printf("\n%s\n", rec.Response)
			}
			return nil
		},
	})

	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
