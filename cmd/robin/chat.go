package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/robin-osint/robin/internal/service"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive investigation session with follow-up queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flagConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			return runChat(cmd, app)
		},
	}
}

func runChat(cmd *cobra.Command, app *app) error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)

	historyPath := chatHistoryPath()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil { // #nosec G304 - fixed path under home
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
	}

	fmt.Println("Robin interactive session. Commands: /reset, /save <file>, /exit")

	var inv *service.Investigation
	var lastResponse string
	sink := newConsoleSink(os.Stdout, false)

	for {
		input, err := line.Prompt("robin> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch {
		case input == "/exit" || input == "/quit":
			goto done

		case input == "/reset":
			if inv != nil {
				inv.Reset()
			}
			fmt.Println("session cleared")
			continue

		case strings.HasPrefix(input, "/save"):
			path := strings.TrimSpace(strings.TrimPrefix(input, "/save"))
			if path == "" {
				path = "robin_chat.md"
			}
			if lastResponse == "" {
				fmt.Println("nothing to save yet")
				continue
			}
			if err := os.WriteFile(path, []byte(lastResponse), 0600); err != nil {
				fmt.Printf("save failed: %v\n", err)
				continue
			}
			fmt.Printf("saved to %s\n", path)
			continue
		}

		ctx := cmd.Context()
		if inv == nil {
			inv, err = app.svc.Start(ctx, input)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				inv = nil
				continue
			}
			result, err := inv.Run(ctx, sink)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			lastResponse = result.Text
		} else {
			result, err := inv.FollowUp(ctx, input, sink)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			lastResponse = result.Text
		}
	}

done:
	if inv != nil {
		service.Remove(inv.ID)
	}
	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil { // #nosec G304 - fixed path under home
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}
	return nil
}

func chatHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".robin")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}
