package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Guard marks one-shot work (a Stripe event, a job's completion email) as
// claimed for a bounded time.
type Guard struct {
	store IdempotencyStore
	scope string
	ttl   time.Duration
}

func NewGuard(store IdempotencyStore, scope string, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, scope: scope, ttl: ttl}, nil
}

// Acquire claims id for owner. It reports false when another caller holds it.
func (g *Guard) Acquire(ctx context.Context, id, owner string) (bool, error) {
	if id == "" {
		return false, errors.New("guard id is required")
	}
	if owner == "" {
		owner = "1"
	}
	ok, err := g.store.SetNX(ctx, g.key(id), owner, g.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s guard: %w", g.scope, err)
	}
	return ok, nil
}

// Holder returns the owner recorded for id, or "" when unclaimed.
func (g *Guard) Holder(ctx context.Context, id string) (string, error) {
	owner, err := g.store.Get(ctx, g.key(id))
	if errors.Is(err, Nil) {
		return "", nil
	}
	return owner, err
}

// Release drops the claim so the work can be retried.
func (g *Guard) Release(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("guard id is required")
	}
	return g.store.Del(ctx, g.key(id))
}

func (g *Guard) key(id string) string {
	return g.store.IdempotencyKey(g.scope, id)
}
