package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentMethod string

const (
	PaymentMpesa  PaymentMethod = "mpesa"
	PaymentCard   PaymentMethod = "card"
	PaymentPaypal PaymentMethod = "paypal"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	return m == PaymentMpesa || m == PaymentCard || m == PaymentPaypal
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type Contribution struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID       primitive.ObjectID `bson:"event_id" json:"event_id"`
	ContributorID primitive.ObjectID `bson:"contributor_id,omitempty" json:"contributor_id,omitempty"`
	Anonymous     bool               `bson:"anonymous" json:"anonymous"`
	Amount        float64            `bson:"amount" json:"amount"`
	Currency      string             `bson:"currency" json:"currency"`
	Method        PaymentMethod      `bson:"method" json:"method"`
	PaymentStatus PaymentStatus      `bson:"payment_status" json:"payment_status"`
	PaymentRef    string             `bson:"payment_reference" json:"payment_reference"`
	ProviderTxnID string             `bson:"provider_txn_id,omitempty" json:"provider_txn_id,omitempty"`
	PhoneNumber   string             `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	Message       string             `bson:"message,omitempty" json:"message,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// Terminal payment statuses never change again. Completed contributions are
// immutable, failed ones are never retried (the contributor starts a new
// contribution instead), so replayed gateway callbacks against either are
// ignored.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentRefunded
}

// Redacted strips the contributor identity off anonymous contributions. The
// redaction applies to every reader, owners and admins included.
func (c Contribution) Redacted() Contribution {
	if c.Anonymous {
		c.ContributorID = primitive.NilObjectID
	}
	return c
}

// SumCompleted re-aggregates the event total from scratch. Confirmation paths
// must use this rather than incrementing so replayed or out-of-order gateway
// callbacks converge on the same figure.
func SumCompleted(contributions []Contribution) float64 {
	var total float64
	for _, c := range contributions {
		if c.PaymentStatus == PaymentCompleted {
			total += c.Amount
		}
	}
	return total
}

// ContributionStats are derived on demand, never stored.
type ContributionStats struct {
	TotalAmount         float64 `json:"total_amount"`
	ContributionCount   int     `json:"contribution_count"`
	UniqueContributors  int     `json:"unique_contributors"`
	AverageContribution float64 `json:"average_contribution"`
}

// AggregateStats computes totals over completed contributions only. Anonymous
// entries without a contributor id each count as a distinct contributor.
func AggregateStats(contributions []Contribution) ContributionStats {
	var stats ContributionStats
	seen := map[string]bool{}
	for _, c := range contributions {
		if c.PaymentStatus != PaymentCompleted {
			continue
		}
		stats.TotalAmount += c.Amount
		stats.ContributionCount++
		if c.Anonymous || c.ContributorID.IsZero() {
			seen[c.ID.Hex()] = true
		} else {
			seen[c.ContributorID.Hex()] = true
		}
	}
	stats.UniqueContributors = len(seen)
	if stats.ContributionCount > 0 {
		stats.AverageContribution = stats.TotalAmount / float64(stats.ContributionCount)
	}
	return stats
}
