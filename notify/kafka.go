package notify

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const TopicNotifications = "giftfund-notifications"

// KafkaNotifier publishes notifications onto a broker for external consumers
// (mailers, push senders). Keyed by recipient so one user's notifications
// stay ordered.
type KafkaNotifier struct {
	writer *kafkago.Writer
}

func NewKafkaNotifier(brokers []string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        TopicNotifications,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
		},
	}
}

func (k *KafkaNotifier) Notify(ctx context.Context, recipientID primitive.ObjectID, notifType string, payload map[string]interface{}) error {
	value, err := json.Marshal(map[string]interface{}{
		"recipient_id": recipientID.Hex(),
		"type":         notifType,
		"payload":      payload,
		"created_at":   time.Now(),
	})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(recipientID.Hex()),
		Value: value,
		Time:  time.Now(),
	})
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
