package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Factory builds a configured gateway. Registration closures capture the
// provider's own configuration; the registry only knows names.
type Factory func() (Gateway, error)

// Registry maps provider names to factories. Exactly one provider is
// active per process, selected by name from configuration at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(name string) (Gateway, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown generation provider: %s", name)
	}
	return f()
}
