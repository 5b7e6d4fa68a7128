// Robin is a dark-web OSINT investigation agent. It fans a query out
// across onion search engines, scrapes the hits over Tor, delegates
// analysis to specialist sub-agents, and writes markdown reports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags.
var Version = "dev"

var (
	flagConfig   string
	flagProvider string
	flagModel    string
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:          "robin",
		Short:        "AI-powered dark web OSINT agent",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", os.Getenv("ROBIN_CONFIG"), "path to config file")
	root.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "", "reasoning engine provider (openai, gemini)")
	root.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "model override")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(
		newInvestigateCmd(),
		newChatCmd(),
		newMonitorCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("robin %s\n", Version)
		},
	}
}
