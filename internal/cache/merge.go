// Package cache holds the pure merge functions for the paginated message
// cache. Every function takes an immutable snapshot and returns a new
// structurally-shared snapshot plus a dirty flag; inputs are never mutated.
package cache

import (
	"time"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

// MergeMessage applies a newly arrived message to the cache.
//
// A nil cache means the initial page load has not completed yet; the message
// seeds a fresh one-page cache so the realtime event is not lost to that
// race. A message already present (by server id or optimistic id) is an
// exact duplicate and leaves the cache untouched. Otherwise the message is
// appended to the newest page. Existing messages are never reordered.
func MergeMessage(c *model.MessageCache, msg model.Message) (*model.MessageCache, bool) {
	if c == nil {
		return &model.MessageCache{
			Pages: []model.Page{{Messages: []model.Message{msg}}},
		}, true
	}
	for _, p := range c.Pages {
		for _, m := range p.Messages {
			if m.Matches(msg) {
				return c, false
			}
		}
	}
	if len(c.Pages) == 0 {
		out := &model.MessageCache{Pages: []model.Page{{Messages: []model.Message{msg}}}}
		return out, true
	}
	newest := c.Pages[0]
	msgs := make([]model.Message, 0, len(newest.Messages)+1)
	msgs = append(msgs, newest.Messages...)
	msgs = append(msgs, msg)
	return withPage(c, 0, model.Page{Messages: msgs, HasMore: newest.HasMore}), true
}

// ReplaceOptimistic swaps the first message carrying the real message's
// optimistic id for the server-confirmed message, preserving its slot. The
// stored message has the optimistic marker stripped. A missing target means
// the slot was already reconciled or never existed; the cache is returned
// unchanged and that is not an error.
func ReplaceOptimistic(c *model.MessageCache, real model.Message) (*model.MessageCache, bool) {
	if c == nil || real.OptimisticID == "" {
		return c, false
	}
	for pi, p := range c.Pages {
		for mi, m := range p.Messages {
			if m.OptimisticID == real.OptimisticID {
				confirmed := real
				confirmed.OptimisticID = ""
				return withMessage(c, pi, mi, confirmed), true
			}
		}
	}
	return c, false
}

// RemoveOptimistic filters out any message carrying the optimistic id, from
// every page. Used to roll back a failed send.
func RemoveOptimistic(c *model.MessageCache, optimisticID string) (*model.MessageCache, bool) {
	if c == nil || optimisticID == "" {
		return c, false
	}
	hit := false
	for _, p := range c.Pages {
		for _, m := range p.Messages {
			if m.OptimisticID == optimisticID {
				hit = true
			}
		}
	}
	if !hit {
		return c, false
	}
	pages := make([]model.Page, len(c.Pages))
	for pi, p := range c.Pages {
		msgs := make([]model.Message, 0, len(p.Messages))
		for _, m := range p.Messages {
			if m.OptimisticID != optimisticID {
				msgs = append(msgs, m)
			}
		}
		pages[pi] = model.Page{Messages: msgs, HasMore: p.HasMore}
	}
	return &model.MessageCache{Pages: pages}, true
}

// ApplyChanges overlays a partial update onto the message identified by key.
// Unknown keys and no-op changes leave the cache untouched.
func ApplyChanges(c *model.MessageCache, key string, ch model.MessageChanges) (*model.MessageCache, bool) {
	m, pi, mi, ok := c.Find(key)
	if !ok {
		return c, false
	}
	next := m
	if ch.Content != nil {
		next.Content = *ch.Content
	}
	if ch.Type != nil {
		next.Type = *ch.Type
	}
	if ch.Deleted != nil {
		next.Deleted = *ch.Deleted
	}
	if next.Content == m.Content && next.Type == m.Type && next.Deleted == m.Deleted {
		return c, false
	}
	return withMessage(c, pi, mi, next), true
}

// ApplyDelete soft-deletes the message identified by key: the entry stays in
// place so pagination windows keep their size, but the deleted marker is set
// and the content cleared.
func ApplyDelete(c *model.MessageCache, key string) (*model.MessageCache, bool) {
	m, pi, mi, ok := c.Find(key)
	if !ok || m.Deleted {
		return c, false
	}
	next := m
	next.Deleted = true
	next.Content = ""
	return withMessage(c, pi, mi, next), true
}

// ApplyReaction adds or removes one user's reaction on a message. Re-adding
// an existing reaction or removing an absent one is a duplicate delivery and
// leaves the cache untouched.
func ApplyReaction(c *model.MessageCache, d model.ReactionDelta) (*model.MessageCache, bool) {
	m, pi, mi, ok := c.Find(d.MessageID)
	if !ok {
		return c, false
	}
	users := m.Reactions[d.Reaction]
	has := false
	for _, u := range users {
		if u == d.UserID {
			has = true
			break
		}
	}
	switch d.Action {
	case model.ReactionAdded:
		if has {
			return c, false
		}
		next := m
		next.Reactions = m.CloneReactions()
		if next.Reactions == nil {
			next.Reactions = make(map[string][]string, 1)
		}
		next.Reactions[d.Reaction] = append(next.Reactions[d.Reaction], d.UserID)
		return withMessage(c, pi, mi, next), true
	case model.ReactionRemoved:
		if !has {
			return c, false
		}
		next := m
		next.Reactions = m.CloneReactions()
		kept := next.Reactions[d.Reaction][:0]
		for _, u := range next.Reactions[d.Reaction] {
			if u != d.UserID {
				kept = append(kept, u)
			}
		}
		if len(kept) == 0 {
			delete(next.Reactions, d.Reaction)
		} else {
			next.Reactions[d.Reaction] = kept
		}
		return withMessage(c, pi, mi, next), true
	}
	return c, false
}

// ApplyReadReceipt records that a user has read a message. A receipt that
// does not move the reader's read time forward is a duplicate.
func ApplyReadReceipt(c *model.MessageCache, r model.ReadReceipt) (*model.MessageCache, bool) {
	m, pi, mi, ok := c.Find(r.MessageID)
	if !ok {
		return c, false
	}
	if prev, seen := m.ReadBy[r.UserID]; seen && !prev.Before(r.ReadAt) {
		return c, false
	}
	next := m
	next.ReadBy = m.CloneReadBy()
	if next.ReadBy == nil {
		next.ReadBy = make(map[string]time.Time, 1)
	}
	next.ReadBy[r.UserID] = r.ReadAt
	return withMessage(c, pi, mi, next), true
}

// withPage returns a copy of the cache with page pi replaced.
func withPage(c *model.MessageCache, pi int, page model.Page) *model.MessageCache {
	pages := make([]model.Page, len(c.Pages))
	copy(pages, c.Pages)
	pages[pi] = page
	return &model.MessageCache{Pages: pages}
}

// withMessage returns a copy of the cache with one message slot replaced,
// sharing every untouched page.
func withMessage(c *model.MessageCache, pi, mi int, msg model.Message) *model.MessageCache {
	p := c.Pages[pi]
	msgs := make([]model.Message, len(p.Messages))
	copy(msgs, p.Messages)
	msgs[mi] = msg
	return withPage(c, pi, model.Page{Messages: msgs, HasMore: p.HasMore})
}
