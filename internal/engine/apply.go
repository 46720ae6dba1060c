package engine

import (
	"context"
	"time"

	"github.com/dattmumas/lnked-realtime/internal/cache"
	"github.com/dattmumas/lnked-realtime/internal/metrics"
	"github.com/dattmumas/lnked-realtime/internal/model"
	"github.com/dattmumas/lnked-realtime/internal/summary"
)

const persistTimeout = 3 * time.Second

// applyDrained is the batcher sink: it applies one coalesced update against
// the caches and swaps the new snapshots in atomically. It is the single
// realtime writer; the send path shares the same lock.
func (e *Engine) applyDrained(u model.BatchedUpdate) {
	metrics.DrainPasses.Inc()
	changed := false
	var confirmed []model.Message

	e.mu.Lock()
	for _, d := range u.Messages {
		if e.applyMessageDeltaLocked(d, &confirmed) {
			changed = true
			metrics.EventsApplied.WithLabelValues("message").Inc()
		} else {
			metrics.DuplicateEvents.Inc()
		}
	}
	for _, r := range u.Reads {
		if e.applyToOwnerLocked(r.MessageID, func(c *model.MessageCache) (*model.MessageCache, bool) {
			return cache.ApplyReadReceipt(c, r)
		}) {
			changed = true
			metrics.EventsApplied.WithLabelValues("read").Inc()
		} else {
			metrics.DuplicateEvents.Inc()
		}
	}
	for _, rd := range u.Reactions {
		d := rd
		if e.applyToOwnerLocked(d.MessageID, func(c *model.MessageCache) (*model.MessageCache, bool) {
			return cache.ApplyReaction(c, d)
		}) {
			changed = true
			metrics.EventsApplied.WithLabelValues("reaction").Inc()
		} else {
			metrics.DuplicateEvents.Inc()
		}
	}
	e.mu.Unlock()

	if u.Typing != nil {
		e.tracker.SyncTyping(u.Typing.TypingUsers)
		changed = true
	}
	if e.cfg.Tap != nil && len(confirmed) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		for _, msg := range confirmed {
			e.cfg.Tap.MessageConfirmed(ctx, model.MessageCreated, msg)
		}
		cancel()
	}
	if changed {
		e.notify()
		if len(confirmed) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			e.persistSummaries(ctx)
			cancel()
		}
	}
}

// applyMessageDeltaLocked folds one message delta into the owning cache,
// appending server-confirmed creations to tapped. Callers hold e.mu.
func (e *Engine) applyMessageDeltaLocked(d model.MessageDelta, tapped *[]model.Message) bool {
	switch d.Action {
	case model.MessageCreated:
		if d.Message == nil {
			return false
		}
		msg := *d.Message
		conv := msg.ConversationID
		c := e.messages[conv]
		// a confirmed copy of a pending optimistic send reconciles in place
		if msg.ID != "" && msg.OptimisticID != "" {
			if next, ok := cache.ReplaceOptimistic(c, msg); ok {
				e.messages[conv] = next
				return true
			}
		}
		next, updated := cache.MergeMessage(c, msg)
		if !updated {
			return false
		}
		e.messages[conv] = next
		if msg.ID != "" {
			e.applySummaryLocked(msg)
			*tapped = append(*tapped, msg)
		}
		return true

	case model.MessageUpdated:
		if d.Changes == nil {
			return false
		}
		return e.applyToOwnerLocked(d.Key(), func(c *model.MessageCache) (*model.MessageCache, bool) {
			return cache.ApplyChanges(c, d.Key(), *d.Changes)
		})

	case model.MessageDeleted:
		if d.MessageID == "" && d.OptimisticID != "" {
			// a delete for a never-confirmed message is a rollback
			return e.applyToOwnerLocked(d.OptimisticID, func(c *model.MessageCache) (*model.MessageCache, bool) {
				return cache.RemoveOptimistic(c, d.OptimisticID)
			})
		}
		return e.applyToOwnerLocked(d.Key(), func(c *model.MessageCache) (*model.MessageCache, bool) {
			return cache.ApplyDelete(c, d.Key())
		})
	}
	return false
}

// applyToOwnerLocked locates the conversation cache containing key and
// applies the transform to it. Unknown keys are already-reconciled events
// and change nothing. Callers hold e.mu.
func (e *Engine) applyToOwnerLocked(key string, fn func(*model.MessageCache) (*model.MessageCache, bool)) bool {
	if key == "" {
		return false
	}
	for conv, c := range e.messages {
		if _, _, _, ok := c.Find(key); !ok {
			continue
		}
		next, updated := fn(c)
		if updated {
			e.messages[conv] = next
		}
		return updated
	}
	return false
}

// applySummaryLocked folds a confirmed message into the conversation list.
// Callers hold e.mu.
func (e *Engine) applySummaryLocked(msg model.Message) {
	next, updated := summary.ApplyMessage(e.convs, msg, e.userID, e.activeConv)
	if updated {
		e.convs = next
		metrics.EventsApplied.WithLabelValues("summary").Inc()
	}
}

func (e *Engine) handlePresenceSync(entries []model.PresenceEntry) {
	e.tracker.Sync(entries)
	e.notify()
}

func (e *Engine) handleTypingStart(userID, username string) {
	e.tracker.TypingStart(userID, username)
	e.notify()
}

func (e *Engine) handleTypingStop(userID string) {
	e.tracker.TypingStop(userID)
	e.notify()
}

func (e *Engine) handleUnreadCount(ev model.UnreadCountEvent) {
	e.mu.Lock()
	next, updated := summary.SetUnread(e.convs, ev.ConversationID, ev.UnreadCount)
	if updated {
		e.convs = next
	}
	e.mu.Unlock()
	if updated {
		e.notify()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		e.persistSummaries(ctx)
	}
}

// persistSummaries mirrors the current conversation snapshot to Redis.
// Best-effort: failures are logged and forgotten.
func (e *Engine) persistSummaries(ctx context.Context) {
	if e.cfg.Summaries == nil {
		return
	}
	e.mu.RLock()
	snap := e.convs
	e.mu.RUnlock()
	if err := e.cfg.Summaries.Save(ctx, e.userID, snap); err != nil {
		e.log.Warnw("summary cache save failed", "err", err)
	}
}
