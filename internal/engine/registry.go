package engine

import (
	"context"
	"sync"
)

// Registry hands out one Engine per local user, building lazily.
type Registry struct {
	mu      sync.Mutex
	build   func(ctx context.Context, userID string) (*Engine, error)
	engines map[string]*Engine
}

func NewRegistry(build func(ctx context.Context, userID string) (*Engine, error)) *Registry {
	return &Registry{build: build, engines: make(map[string]*Engine)}
}

// Get returns the user's engine, constructing it on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Engine, error) {
	r.mu.Lock()
	if e, ok := r.engines[userID]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	// build outside the lock; identity resolution and summary loading may
	// take a while
	e, err := r.build(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.engines[userID]; ok {
		r.mu.Unlock()
		_ = e.Close(ctx)
		return existing, nil
	}
	r.engines[userID] = e
	r.mu.Unlock()
	return e, nil
}

// Close tears down every engine.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()
	for _, e := range engines {
		_ = e.Close(ctx)
	}
}
