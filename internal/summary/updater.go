// Package summary keeps the conversation list's last-message and
// unread-count fields consistent with incoming events. Like the message
// cache, everything here is a pure transform: new snapshot out, dirty flag,
// inputs untouched. The same rule applies whether the list is flat or
// paginated.
package summary

import "github.com/dattmumas/lnked-realtime/internal/model"

// ApplyMessage folds one confirmed message into the list. The last-message
// snapshot is set unconditionally (last-write-wins by arrival; delivery is
// in order per conversation). The unread count increments by one only when
// the sender is not the local user and the conversation is not the one
// currently being viewed; it never decrements here.
func ApplyMessage(c *model.ConversationCache, msg model.Message, localUserID, activeConversationID string) (*model.ConversationCache, bool) {
	return transform(c, msg.ConversationID, func(s model.ConversationSummary) model.ConversationSummary {
		s.LastMessage = &model.LastMessage{
			ID:         msg.ID,
			Content:    msg.Content,
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			CreatedAt:  msg.CreatedAt,
		}
		s.LastMessageAt = msg.CreatedAt
		if msg.SenderID != localUserID && msg.ConversationID != activeConversationID {
			s.UnreadCount++
		}
		return s
	})
}

// SetUnread overrides the locally computed count with a server-computed one.
// Negative values are clamped to zero.
func SetUnread(c *model.ConversationCache, conversationID string, count int) (*model.ConversationCache, bool) {
	if count < 0 {
		count = 0
	}
	return transform(c, conversationID, func(s model.ConversationSummary) model.ConversationSummary {
		s.UnreadCount = count
		return s
	})
}

// MarkRead zeroes the unread count; this is the explicit decrement path.
func MarkRead(c *model.ConversationCache, conversationID string) (*model.ConversationCache, bool) {
	return SetUnread(c, conversationID, 0)
}

// transform applies fn to the matching entry wherever it lives. An unknown
// conversation id leaves the cache untouched; the next list refetch
// reconciles it.
func transform(c *model.ConversationCache, id string, fn func(model.ConversationSummary) model.ConversationSummary) (*model.ConversationCache, bool) {
	if c == nil || id == "" {
		return c, false
	}
	switch c.Kind {
	case model.ConversationCacheFlat:
		for i, s := range c.Flat {
			if s.ID != id {
				continue
			}
			flat := make([]model.ConversationSummary, len(c.Flat))
			copy(flat, c.Flat)
			flat[i] = fn(s)
			return &model.ConversationCache{Kind: model.ConversationCacheFlat, Flat: flat}, true
		}
	case model.ConversationCachePaginated:
		for pi, page := range c.Pages {
			for i, s := range page {
				if s.ID != id {
					continue
				}
				pages := make([][]model.ConversationSummary, len(c.Pages))
				copy(pages, c.Pages)
				next := make([]model.ConversationSummary, len(page))
				copy(next, page)
				next[i] = fn(s)
				pages[pi] = next
				return &model.ConversationCache{Kind: model.ConversationCachePaginated, Pages: pages}, true
			}
		}
	}
	return c, false
}
