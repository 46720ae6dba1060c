// Package batch serializes and coalesces concurrent deliveries of batched
// updates so the caches see one merged unit per drain pass instead of one
// notification per event.
package batch

import (
	"runtime"
	"sync"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

// Sink receives the coalesced update of one drain pass. The deltas inside
// are deduplicated and order-independent; callers must not assume per-event
// granularity.
type Sink func(model.BatchedUpdate)

type state int

const (
	stateIdle state = iota
	stateDraining
)

// Batcher is the single writer in front of the caches: Enqueue may be called
// from any goroutine, drain passes run one at a time in FIFO order.
type Batcher struct {
	mu    sync.Mutex
	st    state
	queue []model.BatchedUpdate
	sink  Sink
	yield func()

	// Passes counts completed drain passes.
	passes int
}

func New(sink Sink, opts ...Option) *Batcher {
	b := &Batcher{sink: sink, yield: runtime.Gosched}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type Option func(*Batcher)

// WithYield overrides the pause between drain passes; tests pass a no-op or
// a hook that enqueues more work.
func WithYield(f func()) Option {
	return func(b *Batcher) { b.yield = f }
}

// Enqueue appends the update and runs a drain unless one is already in
// flight, in which case the update is picked up by a later pass.
func (b *Batcher) Enqueue(u model.BatchedUpdate) {
	b.mu.Lock()
	b.queue = append(b.queue, u)
	if b.st == stateDraining {
		b.mu.Unlock()
		return
	}
	b.st = stateDraining
	b.mu.Unlock()
	b.drain()
}

// Discard drops every queued-but-unapplied update. Used when the owning
// subscription is torn down.
func (b *Batcher) Discard() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}

// Passes returns the number of completed drain passes.
func (b *Batcher) Passes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.passes
}

func (b *Batcher) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.st = stateIdle
			b.mu.Unlock()
			return
		}
		items := b.queue
		b.queue = nil
		b.mu.Unlock()

		merged := Coalesce(items)
		if !merged.Empty() {
			b.sink(merged)
		}

		b.mu.Lock()
		b.passes++
		if len(b.queue) == 0 {
			b.st = stateIdle
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		// items arrived during apply: yield to consumers, then run the
		// next pass from the loop rather than recursing
		b.yield()
	}
}
