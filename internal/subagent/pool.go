package subagent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/robin-osint/robin/pkg/observability"
)

// DefaultConcurrency bounds simultaneous workers.
const DefaultConcurrency = 4

// Completer issues one model completion. It is the only capability a worker
// needs, which keeps the pool trivial to fake in tests.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Result is the outcome of one worker. One Result is produced per requested
// kind, in request order, whether the worker succeeded or not.
type Result struct {
	AgentType string `json:"agent_type"`
	Analysis  string `json:"analysis"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ValidationError reports unknown worker kinds, listing every invalid name
// and the valid set.
type ValidationError struct {
	Invalid []string
	Valid   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid agent types: %s (valid: %s)",
		strings.Join(e.Invalid, ", "), strings.Join(e.Valid, ", "))
}

// Pool runs analysis workers concurrently.
type Pool struct {
	completer Completer
	limit     int
}

// NewPool creates a worker pool. limit <= 0 falls back to DefaultConcurrency.
func NewPool(completer Completer, limit int) *Pool {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Pool{completer: completer, limit: limit}
}

// Available mirrors the package-level registry lookup for callers holding
// only a Pool.
func (p *Pool) Available() map[string]string { return Available() }

// Run executes one worker per requested kind against the same content and
// context. Validation failures surface before any worker is dispatched; once
// dispatched, a worker's failure is captured in its own Result and never
// cancels a sibling.
func (p *Pool) Run(ctx context.Context, kinds []string, content, investigationContext string) ([]Result, error) {
	if len(kinds) == 0 {
		return nil, &ValidationError{Valid: Kinds()}
	}

	var invalid []string
	for _, kind := range kinds {
		if _, ok := profiles[kind]; !ok {
			invalid = append(invalid, kind)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, &ValidationError{Invalid: invalid, Valid: Kinds()}
	}

	results := make([]Result, len(kinds))

	sem := make(chan struct{}, p.limit)
	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, kind string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = p.runOne(ctx, kind, content, investigationContext)
		}(i, kind)
	}
	wg.Wait()

	return results, nil
}

func (p *Pool) runOne(ctx context.Context, kind, content, investigationContext string) Result {
	prof := profiles[kind]

	var sb strings.Builder
	if investigationContext != "" {
		sb.WriteString("Investigation context: ")
		sb.WriteString(investigationContext)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Content to analyze:\n\n")
	sb.WriteString(content)

	analysis, err := p.completer.Complete(ctx, prof.system, sb.String())
	observability.RecordSubagent(kind, err == nil)
	if err != nil {
		return Result{AgentType: kind, Success: false, Error: err.Error()}
	}
	return Result{AgentType: kind, Analysis: analysis, Success: true}
}
