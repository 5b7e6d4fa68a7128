// Package search fans a single query out to a roster of dark web search
// engines and assembles a deduplicated, deterministically ordered result set.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/robin-osint/robin/pkg/transport"
)

// DefaultConcurrency bounds how many engines are queried at once.
const DefaultConcurrency = 5

// ErrNoResults is returned when every engine answered but nothing survived
// deduplication. It is a branchable signal, not a transport failure.
var ErrNoResults = errors.New("search: no results")

// TransportError indicates the transport itself is down, so no engine could
// be queried at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("search transport unavailable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Result is one search hit from any engine.
type Result struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Searcher queries a fixed roster of engines concurrently.
type Searcher struct {
	client transport.Client
	roster []Engine
}

// NewSearcher creates a Searcher over the given roster. An empty roster
// falls back to the default engine list.
func NewSearcher(client transport.Client, roster []Engine) *Searcher {
	if len(roster) == 0 {
		roster = DefaultRoster()
	}
	return &Searcher{client: client, roster: roster}
}

// Search dispatches query to every engine in the roster, at most limit at a
// time, and returns unique results in roster order. A failing engine
// contributes zero results and never aborts its siblings.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search: empty query")
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	if err := s.client.Ping(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	encoded := url.QueryEscape(strings.TrimSpace(query))

	// One result slot per engine, filled concurrently and assembled in
	// roster order afterwards so output never depends on goroutine
	// scheduling.
	perEngine := make([][]Result, len(s.roster))

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, eng := range s.roster {
		wg.Add(1)
		go func(i int, eng Engine) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			body, err := s.client.Get(ctx, eng.SearchURL(encoded))
			if err != nil {
				return // failure isolation: this engine yields nothing
			}
			perEngine[i] = eng.parse(body)
		}(i, eng)
	}
	wg.Wait()

	results := dedupe(perEngine)
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results, nil
}

// Roster returns a copy of the configured engine roster.
func (s *Searcher) Roster() []Engine {
	out := make([]Engine, len(s.roster))
	copy(out, s.roster)
	return out
}

// dedupe collapses duplicate links across engines, keeping first-seen order
// across the fixed roster order.
func dedupe(perEngine [][]Result) []Result {
	seen := make(map[string]struct{})
	var out []Result
	for _, batch := range perEngine {
		for _, r := range batch {
			key := NormalizeLink(r.Link)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// NormalizeLink is the dedup key for a result link: lowercased scheme and
// host, no fragment, no trailing slash.
func NormalizeLink(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(strings.ToLower(link))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
