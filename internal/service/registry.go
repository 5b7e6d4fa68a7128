package service

import (
	"sync"

	"github.com/robin-osint/robin/pkg/observability"
)

// registry tracks live investigations by id so interactive surfaces and
// the monitor can address runs started elsewhere in the process.
var registry = struct {
	mu   sync.RWMutex
	runs map[string]*Investigation
}{runs: make(map[string]*Investigation)}

// Put registers an investigation.
func Put(inv *Investigation) {
	registry.mu.Lock()
	registry.runs[inv.ID] = inv
	n := len(registry.runs)
	registry.mu.Unlock()
	observability.SetActiveInvestigations(n)
}

// Get returns a registered investigation, or nil.
func Get(id string) *Investigation {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.runs[id]
}

// Remove unregisters an investigation.
func Remove(id string) {
	registry.mu.Lock()
	delete(registry.runs, id)
	n := len(registry.runs)
	registry.mu.Unlock()
	observability.SetActiveInvestigations(n)
}

// All returns the registered investigations in unspecified order.
func All() []*Investigation {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	out := make([]*Investigation, 0, len(registry.runs))
	for _, inv := range registry.runs {
		out = append(out, inv)
	}
	return out
}
