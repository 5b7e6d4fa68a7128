// Package scrape fetches and cleans page content for a set of selected
// targets concurrently, tolerating per-target failure.
package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/robin-osint/robin/pkg/transport"
)

const (
	// DefaultConcurrency bounds simultaneous fetches.
	DefaultConcurrency = 5

	// MinMeaningfulLen is the threshold below which extracted text counts
	// as "minimal or no content".
	MinMeaningfulLen = 50
)

// ValidationError reports bad input rejected before any fetch is dispatched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "scrape: " + e.Reason }

// TransportError indicates the transport itself is down, distinguishable
// from "every target was fetched but none had meaningful content".
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("scrape transport unavailable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Target is one page to retrieve.
type Target struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Page is the retrieval outcome for one target. Text holds the full
// extracted content; display truncation is a caller concern.
type Page struct {
	Title   string
	Text    string
	Fetched bool
}

// Meaningful reports whether the extracted text is long enough to be worth
// showing as content rather than a placeholder.
func (p Page) Meaningful() bool {
	return p.Fetched && len(p.Text) > MinMeaningfulLen
}

// ParseTargets normalizes raw tool input into Targets. Entries may be
// {title, link} maps or bare link strings; a bare link gets title "Unknown".
func ParseTargets(raw []any) ([]Target, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Reason: "no targets provided"}
	}

	var targets []Target
	for _, entry := range raw {
		switch v := entry.(type) {
		case map[string]any:
			link, _ := v["link"].(string)
			if strings.TrimSpace(link) == "" {
				continue
			}
			title, _ := v["title"].(string)
			if title == "" {
				title = "Unknown"
			}
			targets = append(targets, Target{Title: title, Link: link})
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			targets = append(targets, Target{Title: "Unknown", Link: v})
		}
	}
	if len(targets) == 0 {
		return nil, &ValidationError{Reason: "invalid target format: want objects with 'title' and 'link' keys, or URL strings"}
	}
	return targets, nil
}

// Retriever fetches target pages through a transport client.
type Retriever struct {
	client transport.Client
}

// NewRetriever creates a Retriever.
func NewRetriever(client transport.Client) *Retriever {
	return &Retriever{client: client}
}

// Retrieve fetches every target concurrently, at most limit at a time. The
// returned map holds exactly one Page per requested link: failed fetches
// appear with Fetched=false rather than being dropped.
func (r *Retriever) Retrieve(ctx context.Context, targets []Target, limit int) (map[string]Page, error) {
	if len(targets) == 0 {
		return nil, &ValidationError{Reason: "no targets provided"}
	}
	for _, t := range targets {
		if strings.TrimSpace(t.Link) == "" {
			return nil, &ValidationError{Reason: "target missing link"}
		}
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	if err := r.client.Ping(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	pages := make(map[string]Page, len(targets))
	var mu sync.Mutex

	// Fetch failures land in the map as Fetched=false, so no goroutine
	// returns an error and Wait never short-circuits the batch.
	var g errgroup.Group
	g.SetLimit(limit)
	for _, t := range targets {
		g.Go(func() error {
			page := Page{Title: t.Title}
			if body, err := r.client.Get(ctx, t.Link); err == nil {
				page.Text = ExtractText(body)
				page.Fetched = true
			}
			mu.Lock()
			pages[t.Link] = page
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return pages, nil
}
