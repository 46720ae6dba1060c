// Package presence tracks who is online and who is typing in one
// conversation. The view is best-effort and self-healing: presence sync
// events are authoritative overwrites, and typing entries expire on a TTL so
// a lost stop-typing event cannot leave a stale indicator behind.
package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dattmumas/lnked-realtime/internal/clock"
	"github.com/dattmumas/lnked-realtime/internal/metrics"
	"github.com/dattmumas/lnked-realtime/internal/model"
)

const (
	typingTTL     = 5 * time.Second
	sweepInterval = time.Second
)

type typingEntry struct {
	username string
	at       time.Time
}

// Callbacks are informational pass-throughs for join/leave events. They do
// not mutate the tracked map; the next presence sync reconciles fully.
type Callbacks struct {
	OnJoin  func(model.PresenceEntry)
	OnLeave func(userID string)
}

type Tracker struct {
	clk clock.Clock
	log *zap.SugaredLogger
	cbs Callbacks

	mu       sync.RWMutex
	presence map[string]model.PresenceEntry
	typing   map[string]typingEntry

	ticker clock.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewTracker starts the sweep loop immediately; call Close to stop it.
func NewTracker(clk clock.Clock, log *zap.SugaredLogger, cbs Callbacks) *Tracker {
	t := &Tracker{
		clk:      clk,
		log:      log,
		cbs:      cbs,
		presence: make(map[string]model.PresenceEntry),
		typing:   make(map[string]typingEntry),
		ticker:   clk.NewTicker(sweepInterval),
		done:     make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Sync replaces the entire presence map with the authoritative snapshot.
// Users absent from the snapshot are fully removed, not marked offline.
func (t *Tracker) Sync(entries []model.PresenceEntry) {
	next := make(map[string]model.PresenceEntry, len(entries))
	for _, e := range entries {
		next[e.UserID] = e
	}
	t.mu.Lock()
	t.presence = next
	t.mu.Unlock()
}

// Join forwards the event to the consumer; the map is left alone.
func (t *Tracker) Join(e model.PresenceEntry) {
	if t.cbs.OnJoin != nil {
		t.cbs.OnJoin(e)
	}
}

// Leave forwards the event to the consumer; the map is left alone.
func (t *Tracker) Leave(userID string) {
	if t.cbs.OnLeave != nil {
		t.cbs.OnLeave(userID)
	}
}

// TypingStart upserts a typing entry stamped with the current time.
func (t *Tracker) TypingStart(userID, username string) {
	now := t.clk.Now()
	t.mu.Lock()
	t.typing[userID] = typingEntry{username: username, at: now}
	t.mu.Unlock()
}

// SyncTyping replaces the typing set with the snapshot from a batched
// update: listed users are stamped with the current time, everyone else is
// dropped.
func (t *Tracker) SyncTyping(users []model.TypingUser) {
	now := t.clk.Now()
	next := make(map[string]typingEntry, len(users))
	for _, u := range users {
		next[u.UserID] = typingEntry{username: u.Username, at: now}
	}
	t.mu.Lock()
	t.typing = next
	t.mu.Unlock()
}

// TypingStop removes the entry immediately.
func (t *Tracker) TypingStop(userID string) {
	t.mu.Lock()
	delete(t.typing, userID)
	t.mu.Unlock()
}

// Combined overlays typing onto presence. Users typing without a known
// presence entry get a minimal synthesized record: the sync may simply not
// have arrived yet.
func (t *Tracker) Combined() map[string]model.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]model.PresenceEntry, len(t.presence)+len(t.typing))
	for id, e := range t.presence {
		out[id] = e
	}
	for id, te := range t.typing {
		if e, ok := out[id]; ok {
			e.Typing = true
			out[id] = e
			continue
		}
		out[id] = model.PresenceEntry{UserID: id, Username: te.username, Typing: true}
	}
	return out
}

// Close stops the sweep loop. Safe to call more than once.
func (t *Tracker) Close() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

func (t *Tracker) sweepLoop() {
	for {
		select {
		case <-t.done:
			return
		case now := <-t.ticker.C():
			t.sweep(now)
		}
	}
}

// sweep drops typing entries older than the TTL, guarding against a lost
// stop-typing event.
func (t *Tracker) sweep(now time.Time) {
	t.mu.Lock()
	for id, te := range t.typing {
		if now.Sub(te.at) > typingTTL {
			delete(t.typing, id)
			metrics.TypingSwept.Inc()
			if t.log != nil {
				t.log.Debugw("typing entry expired", "user_id", id)
			}
		}
	}
	t.mu.Unlock()
}
