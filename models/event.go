package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

type EventVisibility string

const (
	VisibilityPublic   EventVisibility = "public"
	VisibilityPrivate  EventVisibility = "private"
	VisibilityUnlisted EventVisibility = "unlisted"
)

// Funding progress at or above this fraction of the target allows completion
// before the end date.
const PartialFundingThreshold = 0.8

var EventTypes = []string{"birthday", "wedding", "graduation", "baby_shower", "anniversary", "other"}

type ProductLineStatus string

const (
	LinePending     ProductLineStatus = "pending"
	LineContributed ProductLineStatus = "contributed"
	LinePurchased   ProductLineStatus = "purchased"
)

// EventProduct is one wishlist line on an event.
type EventProduct struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"product_id"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Status    ProductLineStatus  `bson:"status" json:"status"`
}

type ShippingDetails struct {
	Name    string `bson:"name" json:"name"`
	Address string `bson:"address" json:"address"`
	Phone   string `bson:"phone" json:"phone"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	Notes   string `bson:"notes,omitempty" json:"notes,omitempty"`
}

type Event struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	CreatorID       primitive.ObjectID   `bson:"creator_id" json:"creator_id"`
	Title           string               `bson:"title" json:"title"`
	Description     string               `bson:"description,omitempty" json:"description,omitempty"`
	EventType       string               `bson:"event_type" json:"event_type"`
	CustomEventType string               `bson:"custom_event_type,omitempty" json:"custom_event_type,omitempty"`
	TargetAmount    float64              `bson:"target_amount" json:"target_amount"`
	CurrentAmount   float64              `bson:"current_amount" json:"current_amount"`
	Products        []EventProduct       `bson:"products" json:"products"`
	Status          EventStatus          `bson:"status" json:"status"`
	Visibility      EventVisibility      `bson:"visibility" json:"visibility"`
	AccessCode      string               `bson:"access_code,omitempty" json:"-"`
	EventDate       time.Time            `bson:"event_date" json:"event_date"`
	EndDate         time.Time            `bson:"end_date" json:"end_date"`
	FullyFunded     bool                 `bson:"fully_funded" json:"fully_funded"`
	FullyFundedAt   *time.Time           `bson:"fully_funded_at,omitempty" json:"fully_funded_at,omitempty"`
	CompletedAt     *time.Time           `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	InvitedUsers    []Invitation         `bson:"invited_users" json:"invited_users,omitempty"`
	OrderIDs        []primitive.ObjectID `bson:"order_ids,omitempty" json:"order_ids,omitempty"`
	ShippingDetails *ShippingDetails     `bson:"shipping_details,omitempty" json:"shipping_details,omitempty"`
	Images          []string             `bson:"images" json:"images"`
	CreatedAt       time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at" json:"updated_at"`
}

// eventTransitions is the only place legal status transitions are defined.
// Controllers must go through CanTransitionTo rather than comparing statuses
// themselves.
var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusPending:   {EventStatusActive, EventStatusCancelled},
	EventStatusActive:    {EventStatusCompleted, EventStatusCancelled},
	EventStatusCompleted: {},
	EventStatusCancelled: {EventStatusActive},
}

func ValidEventStatus(s EventStatus) bool {
	_, ok := eventTransitions[s]
	return ok
}

// CanTransitionTo reports whether the event may move to target at instant now,
// checking both the transition table and the guard conditions. The returned
// error names the failing rule.
func (e *Event) CanTransitionTo(target EventStatus, now time.Time) error {
	allowed, ok := eventTransitions[e.Status]
	if !ok {
		return fmt.Errorf("unknown event status %q", e.Status)
	}
	found := false
	for _, s := range allowed {
		if s == target {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("cannot transition event from %q to %q", e.Status, target)
	}

	switch {
	case e.Status == EventStatusPending && target == EventStatusActive:
		if e.CurrentAmount <= 0 {
			return fmt.Errorf("cannot activate event without any completed contribution")
		}
	case e.Status == EventStatusActive && target == EventStatusCompleted:
		if e.FundingProgress() < PartialFundingThreshold && now.Before(e.EndDate) {
			return fmt.Errorf("cannot complete event below %.0f%% funding before its end date", PartialFundingThreshold*100)
		}
	}
	return nil
}

// FundingProgress returns current/target as a fraction. A zero target counts
// as fully funded so free wishlists are never blocked on money.
func (e *Event) FundingProgress() float64 {
	if e.TargetAmount <= 0 {
		return 1
	}
	return e.CurrentAmount / e.TargetAmount
}

// Deletable events are the only ones a DELETE may actually remove; anything
// holding contributed money gets cancelled instead.
func (e *Event) Deletable() bool {
	return e.CurrentAmount == 0
}

func (e *Event) IsOwner(userID string) bool {
	return e.CreatorID.Hex() == userID
}

// AcceptingContributions covers both pending and active events: the
// pending -> active guard needs at least one landed contribution, so pending
// events must be able to take funds.
func (e *Event) AcceptingContributions() bool {
	return e.Status == EventStatusPending || e.Status == EventStatusActive
}
