// Package notify is the notification port for the funding core. Callers fire
// and forget: delivery failures are logged and never propagate into the
// operation that triggered them.
package notify

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	TypeContributionReceived = "contribution-received"
	TypeEventFullyFunded     = "event-fully-funded"
	TypeEventCheckedOut      = "event-checked-out"
	TypeOrderCreated         = "order-created"
	TypeOrderStatusUpdated   = "order-status-updated"
	TypeInvitationResponse   = "invitation-response"
)

type Notifier interface {
	Notify(ctx context.Context, recipientID primitive.ObjectID, notifType string, payload map[string]interface{}) error
}

// Dispatch runs a notification in the background with its own deadline so the
// request path never blocks on delivery.
func Dispatch(n Notifier, recipientID primitive.ObjectID, notifType string, payload map[string]interface{}) {
	if n == nil || recipientID.IsZero() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Notify(ctx, recipientID, notifType, payload); err != nil {
			log.Printf("notification %s for %s failed: %v", notifType, recipientID.Hex(), err)
		}
	}()
}

type notification struct {
	ID          primitive.ObjectID     `bson:"_id"`
	RecipientID primitive.ObjectID     `bson:"recipient_id"`
	Type        string                 `bson:"type"`
	Payload     map[string]interface{} `bson:"payload"`
	Read        bool                   `bson:"read"`
	CreatedAt   time.Time              `bson:"created_at"`
}

// MongoNotifier appends to the notifications collection the frontend polls.
type MongoNotifier struct {
	col *mongo.Collection
}

func NewMongoNotifier(client *mongo.Client, dbName string) *MongoNotifier {
	return &MongoNotifier{col: client.Database(dbName).Collection("notifications")}
}

func (m *MongoNotifier) Notify(ctx context.Context, recipientID primitive.ObjectID, notifType string, payload map[string]interface{}) error {
	_, err := m.col.InsertOne(ctx, notification{
		ID:          primitive.NewObjectID(),
		RecipientID: recipientID,
		Type:        notifType,
		Payload:     payload,
		CreatedAt:   time.Now(),
	})
	return err
}

// Noop discards notifications; used in tests.
type Noop struct{}

func (Noop) Notify(context.Context, primitive.ObjectID, string, map[string]interface{}) error {
	return nil
}
