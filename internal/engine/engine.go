// Package engine composes the sync core for one local user: a subscription
// manager feeding an update batcher, which drains into the pure cache and
// summary transforms, plus the presence tracker and the optimistic send
// path. Consumers read immutable snapshots; only the drain (and the send
// reconciliation, which shares its lock) ever swaps new ones in.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dattmumas/lnked-realtime/internal/batch"
	"github.com/dattmumas/lnked-realtime/internal/cache"
	"github.com/dattmumas/lnked-realtime/internal/clock"
	"github.com/dattmumas/lnked-realtime/internal/metrics"
	"github.com/dattmumas/lnked-realtime/internal/model"
	"github.com/dattmumas/lnked-realtime/internal/presence"
	"github.com/dattmumas/lnked-realtime/internal/store"
	"github.com/dattmumas/lnked-realtime/internal/subscription"
	"github.com/dattmumas/lnked-realtime/internal/summary"
	"github.com/dattmumas/lnked-realtime/internal/tap"
	"github.com/dattmumas/lnked-realtime/internal/transport"
)

// Tap is the optional mirror for confirmed message deltas.
type Tap interface {
	MessageConfirmed(ctx context.Context, action model.MessageAction, msg model.Message)
}

var _ Tap = (*tap.Producer)(nil)

// Config wires an Engine. Transport, History, Identity, and Logger are
// required; Summaries and Tap are optional, and Clock defaults to the
// system clock.
type Config struct {
	Transport transport.Transport
	History   store.History
	Summaries *store.SummaryCache
	Tap       Tap
	Identity  subscription.IdentityResolver
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
	PageSize  int64
}

// Engine is the per-user synchronization core.
type Engine struct {
	cfg     Config
	log     *zap.SugaredLogger
	clk     clock.Clock
	batcher *batch.Batcher
	tracker *presence.Tracker
	manager *subscription.Manager

	mu         sync.RWMutex
	userID     string
	activeConv string
	messages   map[string]*model.MessageCache
	convs      *model.ConversationCache
	version    uint64
	watchers   map[chan struct{}]struct{}
	closed     bool
}

// New builds the engine and resolves the local user. Identity failure is
// fatal here: there is nothing to sync without a user.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}
	userID, err := cfg.Identity.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		log:      cfg.Logger,
		clk:      cfg.Clock,
		userID:   userID,
		messages: make(map[string]*model.MessageCache),
		watchers: make(map[chan struct{}]struct{}),
	}
	e.batcher = batch.New(e.applyDrained)
	e.tracker = presence.NewTracker(cfg.Clock, cfg.Logger, presence.Callbacks{
		OnJoin:  func(model.PresenceEntry) { e.notify() },
		OnLeave: func(string) { e.notify() },
	})
	e.manager = subscription.NewManager(cfg.Transport, cfg.Identity, cfg.Clock, cfg.Logger,
		subscription.WithDiscard(e.batcher.Discard))

	if err := e.loadSummaries(ctx); err != nil {
		e.tracker.Close()
		return nil, err
	}
	metrics.ActiveEngines.Inc()
	return e, nil
}

// UserID returns the resolved local user id.
func (e *Engine) UserID() string {
	return e.userID
}

// loadSummaries prefers the Redis mirror and falls back to the history
// store's conversation list.
func (e *Engine) loadSummaries(ctx context.Context) error {
	if e.cfg.Summaries != nil {
		c, err := e.cfg.Summaries.Load(ctx, e.userID)
		if err != nil {
			e.log.Warnw("summary cache load failed, falling back to history", "err", err)
		} else if c != nil {
			e.mu.Lock()
			e.convs = c
			e.mu.Unlock()
			return nil
		}
	}
	list, err := e.cfg.History.FetchConversations(ctx, e.userID)
	if err != nil {
		return fmt.Errorf("fetch conversations: %w", err)
	}
	e.mu.Lock()
	e.convs = model.NewFlatConversationCache(list)
	e.mu.Unlock()
	return nil
}

// OpenConversation makes the conversation active: the previous subscription
// is torn down, a new one established, and the newest history page loaded
// unless a realtime event already seeded the cache.
func (e *Engine) OpenConversation(ctx context.Context, conversationID string) error {
	if err := e.manager.Unsubscribe(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.activeConv = conversationID
	e.mu.Unlock()

	err := e.manager.Subscribe(ctx, conversationID, transport.Handlers{
		OnUpdate:        e.batcher.Enqueue,
		OnPresenceSync:  e.handlePresenceSync,
		OnPresenceJoin:  e.tracker.Join,
		OnPresenceLeave: e.tracker.Leave,
		OnTypingStart:   e.handleTypingStart,
		OnTypingStop:    e.handleTypingStop,
		OnUnreadCount:   e.handleUnreadCount,
	})
	if err != nil {
		return err
	}
	return e.hydrate(ctx, conversationID)
}

// CloseConversation unsubscribes and clears the active marker. Queued
// updates for the conversation are discarded, not drained.
func (e *Engine) CloseConversation(ctx context.Context) error {
	e.mu.Lock()
	e.activeConv = ""
	e.mu.Unlock()
	return e.manager.Unsubscribe(ctx)
}

func (e *Engine) hydrate(ctx context.Context, conversationID string) error {
	e.mu.RLock()
	seeded := e.messages[conversationID] != nil
	e.mu.RUnlock()
	if seeded {
		return nil
	}
	page, err := e.cfg.History.FetchPage(ctx, conversationID, time.Time{}, e.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("hydrate conversation: %w", err)
	}
	e.mu.Lock()
	if existing := e.messages[conversationID]; existing == nil {
		e.messages[conversationID] = &model.MessageCache{Pages: []model.Page{page}}
	} else {
		// a realtime event won the race; fold the fetched page in without
		// clobbering what already arrived
		c := existing
		for _, m := range page.Messages {
			c, _ = cache.MergeMessage(c, m)
		}
		e.messages[conversationID] = c
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// SendMessage runs the optimistic write path: insert a client-keyed message
// into the cache immediately, persist it, then reconcile the optimistic
// entry with the server-confirmed copy. On persistence failure the
// optimistic entry is rolled back and the error returned. The realtime
// broadcast afterwards is best-effort.
func (e *Engine) SendMessage(ctx context.Context, conversationID, content, msgType string) (model.Message, error) {
	optimistic := model.Message{
		OptimisticID:   "opt-" + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       e.userID,
		Content:        content,
		Type:           msgType,
		CreatedAt:      e.clk.Now().UTC(),
	}

	e.mu.Lock()
	next, _ := cache.MergeMessage(e.messages[conversationID], optimistic)
	e.messages[conversationID] = next
	e.mu.Unlock()
	e.notify()

	confirmed, err := e.cfg.History.InsertMessage(ctx, optimistic)
	if err != nil {
		e.mu.Lock()
		rolled, _ := cache.RemoveOptimistic(e.messages[conversationID], optimistic.OptimisticID)
		e.messages[conversationID] = rolled
		e.mu.Unlock()
		e.notify()
		return model.Message{}, fmt.Errorf("persist message: %w", err)
	}

	e.mu.Lock()
	reconciled, ok := cache.ReplaceOptimistic(e.messages[conversationID], confirmed)
	if !ok {
		// cache was discarded meanwhile; treat as already reconciled
		reconciled = e.messages[conversationID]
	}
	e.messages[conversationID] = reconciled
	e.applySummaryLocked(confirmed)
	e.mu.Unlock()
	e.notify()

	if e.cfg.Tap != nil {
		e.cfg.Tap.MessageConfirmed(ctx, model.MessageCreated, confirmed)
	}
	e.manager.Broadcast(ctx, confirmed)
	e.persistSummaries(ctx)

	stripped := confirmed
	stripped.OptimisticID = ""
	return stripped, nil
}

// SetTyping publishes the local user's typing state. Best-effort.
func (e *Engine) SetTyping(ctx context.Context, isTyping bool) {
	e.manager.PublishTyping(ctx, isTyping)
}

// MarkRead zeroes the unread count of a conversation; this is the only
// decrement path.
func (e *Engine) MarkRead(ctx context.Context, conversationID string) {
	e.mu.Lock()
	next, updated := summary.MarkRead(e.convs, conversationID)
	if updated {
		e.convs = next
	}
	e.mu.Unlock()
	if updated {
		e.notify()
		e.persistSummaries(ctx)
	}
}

// Messages returns the current immutable snapshot for a conversation; nil
// when nothing is cached yet.
func (e *Engine) Messages(conversationID string) *model.MessageCache {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.messages[conversationID]
}

// Conversations returns the current conversation list snapshot.
func (e *Engine) Conversations() *model.ConversationCache {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.convs
}

// Presence returns the combined presence/typing view for the open
// conversation.
func (e *Engine) Presence() map[string]model.PresenceEntry {
	return e.tracker.Combined()
}

// Version increments whenever any snapshot changes.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Watch registers for change notifications. The channel receives at most
// one pending signal; call the cancel func when done.
func (e *Engine) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.watchers[ch] = struct{}{}
	e.mu.Unlock()
	return ch, func() {
		e.mu.Lock()
		delete(e.watchers, ch)
		e.mu.Unlock()
	}
}

// SubscriptionState exposes the manager's lifecycle state.
func (e *Engine) SubscriptionState() subscription.State {
	return e.manager.State()
}

// Close tears the engine down: unsubscribe, stop the sweep loop, drop
// watchers.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.manager.Unsubscribe(ctx)
	e.tracker.Close()
	e.mu.Lock()
	for ch := range e.watchers {
		delete(e.watchers, ch)
	}
	e.mu.Unlock()
	metrics.ActiveEngines.Dec()
	return err
}

func (e *Engine) notify() {
	e.mu.Lock()
	e.version++
	for ch := range e.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()
}
