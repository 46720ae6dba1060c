// Package tap mirrors confirmed message deltas onto a Kafka topic for
// downstream consumers (notification fan-out, analytics). Strictly
// best-effort: a write failure is logged and the sync core moves on, because
// the authoritative state already lives in the message store.
package tap

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

type Producer struct {
	writer *kafkago.Writer
	log    *zap.SugaredLogger
}

func NewProducer(brokers []string, topic string, log *zap.SugaredLogger) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}
	return &Producer{writer: w, log: log}
}

type messageEvent struct {
	Action         model.MessageAction `json:"action"`
	ConversationID string              `json:"conversation_id"`
	MessageID      string              `json:"message_id"`
	SenderID       string              `json:"sender_id,omitempty"`
	At             time.Time           `json:"at"`
}

// MessageConfirmed publishes one confirmed message delta, keyed by
// conversation so per-conversation ordering is preserved.
func (p *Producer) MessageConfirmed(ctx context.Context, action model.MessageAction, msg model.Message) {
	ev := messageEvent{
		Action:         action,
		ConversationID: msg.ConversationID,
		MessageID:      msg.Key(),
		SenderID:       msg.SenderID,
		At:             time.Now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnw("tap marshal failed", "err", err)
		return
	}
	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(msg.ConversationID),
		Value: b,
		Time:  ev.At,
	})
	if err != nil {
		p.log.Warnw("tap publish failed", "message_id", ev.MessageID, "err", err)
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
