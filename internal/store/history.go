// Package store holds the persistence collaborators: the paginated message
// history the engine hydrates from, and the Redis-backed conversation
// summary cache. The sync core only reads pages and writes back compatible
// shapes; it never paginates on its own.
package store

import (
	"context"
	"time"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

// History is the persistence/pagination collaborator. FetchPage returns one
// bounded window of messages ordered oldest-to-newest within the page,
// together with a has-more flag for the next older window.
type History interface {
	FetchPage(ctx context.Context, conversationID string, before time.Time, limit int64) (model.Page, error)

	// InsertMessage persists a message and returns it with the
	// server-assigned id filled in. The optimistic id survives on the
	// returned copy so the caller can reconcile its cache.
	InsertMessage(ctx context.Context, msg model.Message) (model.Message, error)

	// FetchConversations returns the local user's conversation list.
	FetchConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
}
