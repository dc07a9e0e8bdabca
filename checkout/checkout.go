// Package checkout holds the pure decision logic for converting a funded
// event into per-seller orders. Nothing here touches the database; the
// controllers feed in freshly loaded documents and act on the result.
package checkout

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/giftfund-go/models"
)

type FundingTier string

const (
	FundingComplete     FundingTier = "complete"     // progress >= 100%
	FundingPartial      FundingTier = "partial"      // progress >= 80%
	FundingExpired      FundingTier = "expired"      // end date passed, any progress
	FundingInsufficient FundingTier = "insufficient" // below 80% before end date
)

type UnavailableProduct struct {
	ProductID primitive.ObjectID `json:"product_id"`
	Name      string             `json:"name"`
	Requested int                `json:"requested"`
	Available int                `json:"available"`
	Reason    string             `json:"reason"`
}

type Eligibility struct {
	IsEligible          bool                 `json:"is_eligible"`
	Reasons             []string             `json:"reasons"`
	Progress            float64              `json:"progress"`
	Funding             FundingTier          `json:"funding"`
	UnavailableProducts []UnavailableProduct `json:"unavailable_products"`
}

// Validate decides whether an event may be checked out at instant now. It is
// side-effect-free: callers may run it as many times as they like, before and
// inside the checkout transaction, and get the same answer for the same
// inputs.
func Validate(event *models.Event, products map[primitive.ObjectID]models.Product, now time.Time) Eligibility {
	result := Eligibility{
		Progress: event.FundingProgress(),
		Reasons:  []string{},
	}

	if event.CurrentAmount <= 0 {
		result.Reasons = append(result.Reasons, "event has not received any contributions")
	}
	if event.Status != models.EventStatusActive {
		result.Reasons = append(result.Reasons, fmt.Sprintf("event is %s, only active events can be checked out", event.Status))
	}

	switch {
	case result.Progress >= 1:
		result.Funding = FundingComplete
	case result.Progress >= models.PartialFundingThreshold:
		result.Funding = FundingPartial
	case !now.Before(event.EndDate):
		result.Funding = FundingExpired
	default:
		result.Funding = FundingInsufficient
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"funding at %.0f%% is below the %.0f%% threshold and the event has not ended",
			result.Progress*100, models.PartialFundingThreshold*100))
	}

	for _, line := range event.Products {
		product, ok := products[line.ProductID]
		if !ok {
			result.UnavailableProducts = append(result.UnavailableProducts, UnavailableProduct{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Reason:    "product not found",
			})
			continue
		}
		if !product.Purchasable() {
			result.UnavailableProducts = append(result.UnavailableProducts, UnavailableProduct{
				ProductID: line.ProductID,
				Name:      product.Name,
				Requested: line.Quantity,
				Available: product.Stock,
				Reason:    "product is no longer available",
			})
			continue
		}
		if line.Quantity > product.Stock {
			result.UnavailableProducts = append(result.UnavailableProducts, UnavailableProduct{
				ProductID: line.ProductID,
				Name:      product.Name,
				Requested: line.Quantity,
				Available: product.Stock,
				Reason:    "insufficient stock",
			})
		}
	}
	if len(result.UnavailableProducts) > 0 {
		result.Reasons = append(result.Reasons, fmt.Sprintf("%d product(s) are unavailable or out of stock", len(result.UnavailableProducts)))
	}

	result.IsEligible = len(result.Reasons) == 0
	return result
}

// OrderDraft is one seller's share of the fan-out, priced at draft time.
type OrderDraft struct {
	SellerID    primitive.ObjectID
	Items       []models.OrderItem
	TotalAmount float64
}

// BuildSellerOrders groups the event's product lines by seller and snapshots
// unit prices. Drafts come back in first-appearance order so the fan-out is
// deterministic. Every product must be present in the map; Validate is
// expected to have run first.
func BuildSellerOrders(event *models.Event, products map[primitive.ObjectID]models.Product) ([]OrderDraft, error) {
	index := map[primitive.ObjectID]int{}
	var drafts []OrderDraft

	for _, line := range event.Products {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s not loaded", line.ProductID.Hex())
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("product %s has invalid quantity %d", line.ProductID.Hex(), line.Quantity)
		}

		i, ok := index[product.SellerID]
		if !ok {
			i = len(drafts)
			index[product.SellerID] = i
			drafts = append(drafts, OrderDraft{SellerID: product.SellerID})
		}

		drafts[i].Items = append(drafts[i].Items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
		drafts[i].TotalAmount += product.Price * float64(line.Quantity)
	}

	return drafts, nil
}

// Summary aggregates a completed fan-out for the checkout response.
type Summary struct {
	TotalOrders int     `json:"total_orders"`
	TotalAmount float64 `json:"total_amount"`
	SellerCount int     `json:"seller_count"`
}

func Summarize(orders []models.Order) Summary {
	s := Summary{TotalOrders: len(orders)}
	sellers := map[primitive.ObjectID]bool{}
	for _, o := range orders {
		s.TotalAmount += o.TotalAmount
		sellers[o.SellerID] = true
	}
	s.SellerCount = len(sellers)
	return s
}
