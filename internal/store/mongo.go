package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

// MongoHistory backs the History interface with the platform's message and
// conversation collections.
type MongoHistory struct {
	msgCol  *mongo.Collection
	convCol *mongo.Collection
}

func NewMongoHistory(db *mongo.Database) *MongoHistory {
	return &MongoHistory{
		msgCol:  db.Collection("messages"),
		convCol: db.Collection("conversations"),
	}
}

func (h *MongoHistory) FetchPage(ctx context.Context, conversationID string, before time.Time, limit int64) (model.Page, error) {
	filter := bson.M{"conversation_id": conversationID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	// fetch one extra row to learn whether an older window exists
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit + 1)
	cur, err := h.msgCol.Find(ctx, filter, opts)
	if err != nil {
		return model.Page{}, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var msgs []model.Message
	for cur.Next(ctx) {
		var m model.Message
		if err := cur.Decode(&m); err != nil {
			return model.Page{}, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := cur.Err(); err != nil {
		return model.Page{}, err
	}
	hasMore := int64(len(msgs)) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	// newest-first from the index, chronological within the page
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return model.Page{Messages: msgs, HasMore: hasMore}, nil
}

func (h *MongoHistory) InsertMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	optimisticID := msg.OptimisticID
	stored := msg
	stored.ID = primitive.NewObjectID().Hex()
	stored.OptimisticID = "" // the client key never reaches the store
	if _, err := h.msgCol.InsertOne(ctx, stored); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	_, _ = h.convCol.UpdateOne(ctx,
		bson.M{"_id": msg.ConversationID},
		bson.M{"$set": bson.M{"updated_at": stored.CreatedAt}})
	stored.OptimisticID = optimisticID
	return stored, nil
}

func (h *MongoHistory) FetchConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	cur, err := h.convCol.Find(ctx,
		bson.M{"members": userID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.ConversationSummary
	for cur.Next(ctx) {
		var doc struct {
			ID            string             `bson:"_id"`
			Title         string             `bson:"title"`
			LastMessage   *model.LastMessage `bson:"last_message"`
			LastMessageAt time.Time          `bson:"last_message_at"`
			UnreadCount   int                `bson:"unread_count"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode conversation: %w", err)
		}
		out = append(out, model.ConversationSummary{
			ID:            doc.ID,
			Title:         doc.Title,
			LastMessage:   doc.LastMessage,
			LastMessageAt: doc.LastMessageAt,
			UnreadCount:   doc.UnreadCount,
		})
	}
	return out, cur.Err()
}
