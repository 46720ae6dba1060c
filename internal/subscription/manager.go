// Package subscription owns the lifecycle of one transport subscription per
// (local user, conversation) pair: connect, error handling, and fixed-delay
// reconnect.
package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dattmumas/lnked-realtime/internal/clock"
	"github.com/dattmumas/lnked-realtime/internal/metrics"
	"github.com/dattmumas/lnked-realtime/internal/model"
	"github.com/dattmumas/lnked-realtime/internal/transport"
)

// State is the manager's lifecycle position. Idle is the only terminal
// state and is reached solely through explicit Unsubscribe.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateErroring
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateErroring:
		return "erroring"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	// ReconnectDelay is fixed: no exponential growth, no retry cap.
	ReconnectDelay = 5 * time.Second

	subscribeTimeout = 10 * time.Second
)

// IdentityResolver yields the local user's id before subscribing. A failure
// here is fatal to the attempt: no retry is scheduled.
type IdentityResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Manager drives one subscription. All transitions are guarded by gen: an
// Unsubscribe bumps it, which invalidates every in-flight connect attempt
// and pending retry.
type Manager struct {
	tr       transport.Transport
	identity IdentityResolver
	clk      clock.Clock
	log      *zap.SugaredLogger

	// discard, when set, drops queued-but-unapplied updates on teardown.
	discard func()

	mu         sync.Mutex
	state      State
	gen        int
	userID     string
	convID     string
	handlers   transport.Handlers
	sub        transport.Subscription
	retryTimer clock.Timer
}

type Option func(*Manager)

// WithDiscard registers the hook invoked on Unsubscribe to drop pending
// updates for the conversation.
func WithDiscard(f func()) Option {
	return func(m *Manager) { m.discard = f }
}

func NewManager(tr transport.Transport, identity IdentityResolver, clk clock.Clock, log *zap.SugaredLogger, opts ...Option) *Manager {
	m := &Manager{tr: tr, identity: identity, clk: clk, log: log, state: StateIdle}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe establishes the subscription. A call while one is already being
// established (or live) is a no-op. Identity resolution failure aborts and
// is returned; transport failures are not surfaced and instead enter the
// reconnect loop.
func (m *Manager) Subscribe(ctx context.Context, conversationID string, h transport.Handlers) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.convID = conversationID
	m.handlers = h
	m.mu.Unlock()

	userID, err := m.identity.Resolve(ctx)
	if err != nil {
		m.log.Errorw("no identifiable local user, aborting subscribe",
			"conversation_id", conversationID, "err", err)
		m.mu.Lock()
		if m.gen == gen {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return fmt.Errorf("resolve identity: %w", err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	m.userID = userID
	m.mu.Unlock()

	m.connect(gen)
	return nil
}

// Unsubscribe tears the subscription down: the pending retry timer is
// cancelled, queued updates are discarded, and the manager returns to Idle.
// Idempotent.
func (m *Manager) Unsubscribe(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	sub := m.sub
	m.sub = nil
	m.state = StateIdle
	m.mu.Unlock()

	if m.discard != nil {
		m.discard()
	}
	if sub != nil {
		if err := sub.Unsubscribe(ctx); err != nil {
			m.log.Warnw("transport unsubscribe failed", "err", err)
		}
	}
	return nil
}

// PublishTyping forwards the local user's typing state while subscribed.
// Best-effort: failures are logged, never surfaced.
func (m *Manager) PublishTyping(ctx context.Context, isTyping bool) {
	m.mu.Lock()
	sub := m.sub
	live := m.state == StateSubscribed
	m.mu.Unlock()
	if !live || sub == nil {
		return
	}
	if err := sub.PublishTyping(ctx, isTyping); err != nil {
		m.log.Warnw("typing signal publish failed", "err", err)
	}
}

// Broadcast fans a confirmed message out over the transport. Best-effort:
// the message is already persisted, so a failure only costs other clients a
// realtime delivery, and the next fetch heals it.
func (m *Manager) Broadcast(ctx context.Context, msg model.Message) {
	m.mu.Lock()
	sub := m.sub
	live := m.state == StateSubscribed
	m.mu.Unlock()
	if !live || sub == nil {
		return
	}
	if err := sub.BroadcastMessage(ctx, msg); err != nil {
		m.log.Warnw("message broadcast failed", "message_id", msg.Key(), "err", err)
	}
}

func (m *Manager) connect(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	topic := transport.Topic{UserID: m.userID, ConversationID: m.convID}
	h := m.handlers
	m.mu.Unlock()

	wrapped := h
	wrapped.OnStatus = func(st transport.Status) {
		m.handleStatus(gen, st)
		if h.OnStatus != nil {
			h.OnStatus(st)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	sub, err := m.tr.Subscribe(ctx, topic, wrapped)
	if err != nil {
		m.log.Warnw("chat subscribe failed",
			"conversation_id", topic.ConversationID, "err", err)
		m.mu.Lock()
		m.scheduleReconnectLocked(gen)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		_ = sub.Unsubscribe(context.Background())
		return
	}
	m.sub = sub
	if m.state == StateConnecting {
		m.state = StateSubscribed
	}
	m.mu.Unlock()
}

func (m *Manager) handleStatus(gen int, st transport.Status) {
	switch st {
	case transport.StatusSubscribed:
		m.mu.Lock()
		if m.gen == gen && m.state == StateConnecting {
			m.state = StateSubscribed
		}
		m.mu.Unlock()
	case transport.StatusChannelError, transport.StatusTimedOut, transport.StatusClosed:
		m.mu.Lock()
		if m.gen != gen || m.state == StateIdle {
			m.mu.Unlock()
			return
		}
		if m.retryTimer != nil {
			// a backoff window is already active; overlapping errors are
			// ignored so only one retry timer ever exists
			m.mu.Unlock()
			m.log.Debugw("transport error during active backoff window ignored", "status", st)
			return
		}
		m.state = StateErroring
		m.log.Warnw("chat channel error, scheduling reconnect",
			"conversation_id", m.convID, "status", st, "delay", ReconnectDelay)
		m.scheduleReconnectLocked(gen)
		m.mu.Unlock()
	}
}

// scheduleReconnectLocked arms the single retry timer. Callers hold m.mu.
func (m *Manager) scheduleReconnectLocked(gen int) {
	if m.gen != gen || m.state == StateIdle || m.retryTimer != nil {
		return
	}
	m.state = StateReconnecting
	metrics.ReconnectAttempts.Inc()
	m.retryTimer = m.clk.AfterFunc(ReconnectDelay, func() {
		m.retry(gen)
	})
}

func (m *Manager) retry(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	old := m.sub
	m.sub = nil
	m.mu.Unlock()

	if old != nil {
		_ = old.Unsubscribe(context.Background())
	}
	m.connect(gen)
}
