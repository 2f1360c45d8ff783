package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the redis surface needed to dedupe jobs.
type Store interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// Guard remembers delivered job IDs per consumer using SETNX with a TTL so a
// redelivered message that already completed is skipped.
// Keys follow `hd:idempotency:job:<consumer>:<job_id>`.
type Guard struct {
	store Store
	ttl   time.Duration
}

func NewGuard(store Store, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Seen returns true when jobID was already marked for consumer; otherwise it
// marks it and returns false.
func (g *Guard) Seen(ctx context.Context, consumer string, jobID uuid.UUID) (bool, error) {
	key, err := g.key(consumer, jobID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Forget clears the mark so a failed job can be retried.
func (g *Guard) Forget(ctx context.Context, consumer string, jobID uuid.UUID) error {
	key, err := g.key(consumer, jobID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer string, jobID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if jobID == uuid.Nil {
		return "", errors.New("job id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("job:%s", consumer), jobID.String()), nil
}
