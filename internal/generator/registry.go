package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
)

// Factory builds a provider from the agent configuration.
type Factory func(cfg config.AgentConfig) (Generator, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the built-in providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("http", func(cfg config.AgentConfig) (Generator, error) {
		return NewHTTPProvider(cfg)
	})
	r.Register("escalate", func(config.AgentConfig) (Generator, error) {
		return Func(escalate), nil
	})
	return r
}

func (r *Registry) Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(name string, cfg config.AgentConfig) (Generator, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown response generator %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(cfg)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// escalate hands every conversation to a human. Used where no model is deployed.
func escalate(context.Context, *models.Conversation, []models.Message) (Result, error) {
	return Result{Status: StatusFallback}, nil
}
