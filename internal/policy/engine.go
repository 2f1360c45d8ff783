package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

type ruleSource interface {
	ActiveRules(ctx context.Context) ([]Rule, []error, error)
}

// Engine evaluates payloads against rules loaded from the database. Loaded rules
// are cached for ttl (forever when ttl is not positive); Invalidate drops them
// after an admin change.
type Engine struct {
	source ruleSource
	logg   *logger.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	rules    []Rule
	loadedAt time.Time
	loaded   bool
}

func NewEngine(source ruleSource, ttl time.Duration, logg *logger.Logger) (*Engine, error) {
	if source == nil {
		return nil, errors.New("policy rule source required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Engine{source: source, logg: logg, ttl: ttl, now: time.Now}, nil
}

// Evaluate loads (or reuses) the active rules and runs them against p.
func (e *Engine) Evaluate(ctx context.Context, p Payload) (Decision, error) {
	rules, err := e.Rules(ctx)
	if err != nil {
		return Decision{}, err
	}
	return Evaluate(rules, p), nil
}

// Rules returns the cached rule set, reloading it when stale.
func (e *Engine) Rules(ctx context.Context) ([]Rule, error) {
	e.mu.RLock()
	if e.fresh() {
		rules := e.rules
		e.mu.RUnlock()
		return rules, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fresh() {
		return e.rules, nil
	}

	rules, skipped, err := e.source.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		e.logg.Warn(e.logg.WithField(ctx, "error", s.Error()), "policy rule skipped")
	}
	e.rules = Ordered(rules)
	e.loadedAt = e.now()
	e.loaded = true
	return e.rules, nil
}

// Invalidate forces the next evaluation to reload rules.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.loaded = false
	e.rules = nil
	e.mu.Unlock()
}

func (e *Engine) fresh() bool {
	if !e.loaded {
		return false
	}
	return e.ttl <= 0 || e.now().Sub(e.loadedAt) < e.ttl
}
