package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robin-osint/robin/internal/scrape"
	"github.com/robin-osint/robin/internal/search"
	"github.com/robin-osint/robin/internal/subagent"
)

// Presentation limits. These cap what the model sees; the underlying
// components keep the full result sets.
const (
	displayResultCap = 50
	titleTrimLen     = 80
	contentBudget    = 2000
)

// Searcher is the search fan-out capability the tools depend on.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Retriever is the retrieval fan-out capability.
type Retriever interface {
	Retrieve(ctx context.Context, targets []scrape.Target, limit int) (map[string]scrape.Page, error)
}

// Delegator is the worker delegation capability.
type Delegator interface {
	Run(ctx context.Context, kinds []string, content, investigationContext string) ([]subagent.Result, error)
	Available() map[string]string
}

// Deps carries the concrete components behind the capability table.
type Deps struct {
	Searcher  Searcher
	Retriever Retriever
	Delegator Delegator
	// ReportDir is where save_report writes; empty means current directory.
	ReportDir string
	// SearchConcurrency and ScrapeConcurrency are the operator defaults for
	// max_workers when the engine omits the argument. Zero falls back to the
	// package defaults.
	SearchConcurrency int
	ScrapeConcurrency int
	// Now is the clock used for report filenames; nil means time.Now.
	Now func() time.Time
}

// NewDefaultRegistry builds the full capability table. Every tool's response
// text tells the engine what to do next, including on zero or partial results.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SearchConcurrency <= 0 {
		deps.SearchConcurrency = search.DefaultConcurrency
	}
	if deps.ScrapeConcurrency <= 0 {
		deps.ScrapeConcurrency = scrape.DefaultConcurrency
	}

	r := NewRegistry()
	for _, t := range []Tool{
		searchTool(deps),
		scrapeTool(deps),
		saveTool(deps),
		delegateTool(deps),
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func searchTool(deps Deps) Tool {
	return Tool{
		Name: NameSearch,
		Description: "Search multiple dark web search engines simultaneously via Tor. " +
			"Returns deduplicated results with titles and .onion links. " +
			"Use this to gather initial intelligence on a topic.",
		Schema: Schema{
			"query":       {Type: "string", Description: "Search query", Required: true},
			"max_workers": {Type: "integer", Description: "Concurrent engine queries (default 5)"},
		},
		Handler: func(ctx context.Context, args Args) (Output, error) {
			query := args.String("query")
			if strings.TrimSpace(query) == "" {
				return Output{Text: "No query provided. Pass a non-empty 'query' string."}, nil
			}
			maxWorkers := args.Int("max_workers")
			if maxWorkers <= 0 {
				maxWorkers = deps.SearchConcurrency
			}

			results, err := deps.Searcher.Search(ctx, query, maxWorkers)
			var terr *search.TransportError
			switch {
			case errors.As(err, &terr):
				return Output{Text: fmt.Sprintf("Search failed: %v. Make sure the Tor SOCKS proxy is running and reachable.", terr.Err)}, nil
			case errors.Is(err, search.ErrNoResults):
				return Output{Text: "No results found. Try refining your search query or check Tor connectivity."}, nil
			case err != nil:
				return Output{Text: fmt.Sprintf("Search failed: %v.", err)}, nil
			}

			return Output{Text: formatSearchResults(results), Data: results}, nil
		},
	}
}

func formatSearchResults(results []search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found **%d** unique results from dark web search engines.\n\n", len(results))

	shown := results
	if len(shown) > displayResultCap {
		shown = shown[:displayResultCap]
	}
	for i, res := range shown {
		title := res.Title
		if len(title) > titleTrimLen {
			title = title[:titleTrimLen] + "..."
		}
		fmt.Fprintf(&sb, "%d. **%s**\n   URL: %s\n\n", i+1, title, res.Link)
	}
	if extra := len(results) - displayResultCap; extra > 0 {
		fmt.Fprintf(&sb, "... and %d more results.\n\n", extra)
	}

	sb.WriteString("**Next step**: Select the most relevant results and use `darkweb_scrape` " +
		"with a list of targets containing title and link for each.")
	return sb.String()
}

func scrapeTool(deps Deps) Tool {
	return Tool{
		Name: NameScrape,
		Description: "Scrape and extract text content from .onion URLs via Tor. " +
			"Pass a list of target objects, each with 'title' and 'link' keys. " +
			"Returns cleaned text content from each page.",
		Schema: Schema{
			"targets":     {Type: "array", Description: "Targets with 'title' and 'link' keys", Required: true, Items: "object"},
			"max_workers": {Type: "integer", Description: "Concurrent fetches (default 5)"},
		},
		Handler: func(ctx context.Context, args Args) (Output, error) {
			targets, err := scrape.ParseTargets(args.Slice("targets"))
			var verr *scrape.ValidationError
			if errors.As(err, &verr) {
				return Output{Text: verr.Reason + ". Provide a list of objects with 'title' and 'link' keys, or a list of URL strings."}, nil
			}
			if err != nil {
				return Output{}, err
			}
			maxWorkers := args.Int("max_workers")
			if maxWorkers <= 0 {
				maxWorkers = deps.ScrapeConcurrency
			}

			pages, err := deps.Retriever.Retrieve(ctx, targets, maxWorkers)
			var terr *scrape.TransportError
			if errors.As(err, &terr) {
				return Output{Text: fmt.Sprintf("Scraping failed: %v. Make sure the Tor SOCKS proxy is running, then retry.", terr.Err)}, nil
			}
			if err != nil {
				return Output{Text: fmt.Sprintf("Scraping failed: %v. Some .onion sites may be offline.", err)}, nil
			}

			return Output{Text: formatPages(targets, pages), Data: pages}, nil
		},
	}
}

func formatPages(targets []scrape.Target, pages map[string]scrape.Page) string {
	meaningful := 0
	var parts []string
	for _, t := range targets {
		page, ok := pages[t.Link]
		if ok && page.Meaningful() {
			meaningful++
			content := page.Text
			if len(content) > contentBudget {
				content = content[:contentBudget] + "..."
			}
			parts = append(parts, fmt.Sprintf("## Source: %s\n\n%s\n\n---", t.Link, content))
		} else {
			parts = append(parts, fmt.Sprintf("## Source: %s\n\n*[Minimal or no content extracted]*\n\n---", t.Link))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Successfully scraped **%d/%d** pages.\n\n", meaningful, len(targets))
	sb.WriteString(strings.Join(parts, "\n"))
	if meaningful == 0 {
		sb.WriteString("\n\nNo meaningful content was extracted. The sites may be offline or " +
			"blocking requests; retry later or pick different targets from the search results.")
	}
	sb.WriteString("\n\n**Next step**: Analyze this content for intelligence artifacts and generate your findings report.")
	return sb.String()
}

func saveTool(deps Deps) Tool {
	return Tool{
		Name: NameSave,
		Description: "Save the investigation report to a markdown file. " +
			"Use this when the user asks to save or export the findings.",
		Schema: Schema{
			"content":  {Type: "string", Description: "Report markdown content", Required: true},
			"filename": {Type: "string", Description: "Optional filename; generated when omitted"},
		},
		Handler: func(ctx context.Context, args Args) (Output, error) {
			content := args.String("content")
			if content == "" {
				return Output{Text: "No content provided. Pass the report markdown as 'content'."}, nil
			}

			filename := args.String("filename")
			if filename == "" {
				filename = "robin_report_" + deps.Now().Format("2006-01-02_15-04-05") + ".md"
			}
			if !strings.HasSuffix(filename, ".md") {
				filename += ".md"
			}
			path := filename
			if deps.ReportDir != "" {
				if err := os.MkdirAll(deps.ReportDir, 0o755); err != nil {
					return Output{Text: fmt.Sprintf("Failed to save report: %v", err)}, nil
				}
				path = filepath.Join(deps.ReportDir, filename)
			}

			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return Output{Text: fmt.Sprintf("Failed to save report: %v", err)}, nil
			}
			return Output{Text: fmt.Sprintf("Report saved successfully to **%s**", path)}, nil
		},
	}
}

func delegateTool(deps Deps) Tool {
	return Tool{
		Name: NameDelegate,
		Description: "Delegate specialized analysis to expert sub-agents. Available agents:\n" +
			"- ThreatActorProfiler: Profiles threat actors, APT groups, cybercriminals\n" +
			"- IOCExtractor: Extracts IPs, domains, hashes, emails, crypto addresses\n" +
			"- MalwareAnalyst: Analyzes malware, ransomware, exploits\n" +
			"- MarketplaceInvestigator: Investigates dark web markets and vendors\n" +
			"You can delegate to multiple agents simultaneously for comprehensive analysis.",
		Schema: Schema{
			"agent_types": {Type: "array", Description: "Agent kinds to run", Required: true, Items: "string"},
			"content":     {Type: "string", Description: "Content to analyze", Required: true},
			"context":     {Type: "string", Description: "Original query / investigation goals"},
		},
		Handler: func(ctx context.Context, args Args) (Output, error) {
			kinds := args.StringSlice("agent_types")
			if len(kinds) == 0 {
				return Output{Text: "No agents specified. Available sub-agents:\n\n" + formatAvailable(deps.Delegator.Available())}, nil
			}
			content := args.String("content")
			if content == "" {
				return Output{Text: "No content provided for analysis. Include the scraped content to analyze."}, nil
			}

			results, err := deps.Delegator.Run(ctx, kinds, content, args.String("context"))
			var verr *subagent.ValidationError
			if errors.As(err, &verr) {
				return Output{Text: fmt.Sprintf("%v. Correct the agent list and delegate again.", verr)}, nil
			}
			if err != nil {
				return Output{Text: fmt.Sprintf("Sub-agent execution failed: %v", err)}, nil
			}

			return Output{Text: formatDelegation(kinds, results), Data: results}, nil
		},
	}
}

func formatAvailable(available map[string]string) string {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "- **%s**: %s\n", name, available[name])
	}
	return sb.String()
}

func formatDelegation(kinds []string, results []subagent.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Sub-Agent Analysis Results\n\nDelegated to: %s\n\n", strings.Join(kinds, ", "))
	for _, res := range results {
		if res.Success {
			fmt.Fprintf(&sb, "### %s\n\n%s\n\n", res.AgentType, res.Analysis)
		} else {
			fmt.Fprintf(&sb, "### %s\n\n*Analysis failed: %s*\n\n", res.AgentType, res.Error)
		}
	}
	sb.WriteString("---\n\n**Next step**: Synthesize these findings into your final report.")
	return sb.String()
}
