package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderPreparing  OrderStatus = "preparing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// OrderSourceEvent tags orders produced by the event checkout fan-out.
const OrderSourceEvent = "event"

type OrderItem struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"product_id"`
	Name      string             `bson:"name" json:"name"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	// UnitPrice is snapshotted at order creation; later product price changes
	// never touch historical orders.
	UnitPrice float64 `bson:"unit_price" json:"unit_price"`
}

type TimelineEntry struct {
	Status      OrderStatus `bson:"status" json:"status"`
	Description string      `bson:"description" json:"description"`
	At          time.Time   `bson:"at" json:"at"`
}

type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BuyerID         primitive.ObjectID `bson:"buyer_id" json:"buyer_id"`
	SellerID        primitive.ObjectID `bson:"seller_id" json:"seller_id"`
	Items           []OrderItem        `bson:"items" json:"items"`
	TotalAmount     float64            `bson:"total_amount" json:"total_amount"`
	Status          OrderStatus        `bson:"status" json:"status"`
	PaymentStatus   PaymentStatus      `bson:"payment_status" json:"payment_status"`
	Timeline        []TimelineEntry    `bson:"timeline" json:"timeline"`
	ShippingDetails ShippingDetails    `bson:"shipping_details" json:"shipping_details"`
	Source          string             `bson:"source,omitempty" json:"source,omitempty"`
	SourceEventID   primitive.ObjectID `bson:"source_event_id,omitempty" json:"source_event_id,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderPreparing, OrderCancelled},
	OrderPreparing:  {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
	OrderDelivered:  {},
	OrderCancelled:  {},
}

func ValidOrderStatus(s OrderStatus) bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo enforces the fulfilment progression; cancellation is only
// reachable before the order ships.
func (o *Order) CanTransitionTo(target OrderStatus) error {
	allowed, ok := orderTransitions[o.Status]
	if !ok {
		return fmt.Errorf("unknown order status %q", o.Status)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("cannot transition order from %q to %q", o.Status, target)
}

// LineTotal of every item must add up to TotalAmount at creation time.
func (o *Order) LineTotal() float64 {
	var total float64
	for _, it := range o.Items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}
