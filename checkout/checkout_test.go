package checkout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/giftfund-go/models"
)

type fixture struct {
	event    *models.Event
	products map[primitive.ObjectID]models.Product
	sellerA  primitive.ObjectID
	sellerB  primitive.ObjectID
}

// two sellers: A sells a 2500 gift (qty 1), B sells a 1200 gift (qty 3)
func newFixture() fixture {
	sellerA := primitive.NewObjectID()
	sellerB := primitive.NewObjectID()
	p1 := models.Product{ID: primitive.NewObjectID(), SellerID: sellerA, Name: "Blender", Price: 2500, Stock: 5, Status: models.ProductActive}
	p2 := models.Product{ID: primitive.NewObjectID(), SellerID: sellerB, Name: "Mug Set", Price: 1200, Stock: 3, Status: models.ProductActive}

	event := &models.Event{
		ID:            primitive.NewObjectID(),
		Status:        models.EventStatusActive,
		TargetAmount:  10000,
		CurrentAmount: 8500,
		EndDate:       time.Now().Add(48 * time.Hour),
		Products: []models.EventProduct{
			{ProductID: p1.ID, Quantity: 1, Status: models.LinePending},
			{ProductID: p2.ID, Quantity: 3, Status: models.LinePending},
		},
	}
	return fixture{
		event:    event,
		products: map[primitive.ObjectID]models.Product{p1.ID: p1, p2.ID: p2},
		sellerA:  sellerA,
		sellerB:  sellerB,
	}
}

func TestValidate_PartialFundingIsEligible(t *testing.T) {
	f := newFixture()
	now := time.Now()

	result := Validate(f.event, f.products, now)
	assert.True(t, result.IsEligible)
	assert.Equal(t, FundingPartial, result.Funding)
	assert.InDelta(t, 0.85, result.Progress, 1e-9)
	assert.Empty(t, result.Reasons)
	assert.Empty(t, result.UnavailableProducts)
}

func TestValidate_FullFunding(t *testing.T) {
	f := newFixture()
	f.event.CurrentAmount = 12000

	result := Validate(f.event, f.products, time.Now())
	assert.True(t, result.IsEligible)
	assert.Equal(t, FundingComplete, result.Funding)
}

func TestValidate_InsufficientFundingBeforeEndDate(t *testing.T) {
	f := newFixture()
	f.event.CurrentAmount = 3000

	result := Validate(f.event, f.products, time.Now())
	assert.False(t, result.IsEligible)
	assert.Equal(t, FundingInsufficient, result.Funding)
	assert.NotEmpty(t, result.Reasons)
}

func TestValidate_TimeBoxedExceptionAfterEndDate(t *testing.T) {
	f := newFixture()
	f.event.CurrentAmount = 3000
	f.event.EndDate = time.Now().Add(-time.Hour)

	result := Validate(f.event, f.products, time.Now())
	assert.True(t, result.IsEligible)
	assert.Equal(t, FundingExpired, result.Funding)
}

func TestValidate_NoContributions(t *testing.T) {
	f := newFixture()
	f.event.CurrentAmount = 0
	f.event.EndDate = time.Now().Add(-time.Hour) // funding tier alone would pass

	result := Validate(f.event, f.products, time.Now())
	assert.False(t, result.IsEligible)
}

func TestValidate_NonActiveEvent(t *testing.T) {
	for _, status := range []models.EventStatus{models.EventStatusPending, models.EventStatusCompleted, models.EventStatusCancelled} {
		f := newFixture()
		f.event.Status = status
		result := Validate(f.event, f.products, time.Now())
		assert.False(t, result.IsEligible, "status %s", status)
	}
}

func TestValidate_StockShortfallListsProduct(t *testing.T) {
	f := newFixture()
	// second line wants 3, drop stock to 2
	for id, p := range f.products {
		if p.Name == "Mug Set" {
			p.Stock = 2
			f.products[id] = p
		}
	}

	result := Validate(f.event, f.products, time.Now())
	assert.False(t, result.IsEligible)
	require.Len(t, result.UnavailableProducts, 1)
	assert.Equal(t, "Mug Set", result.UnavailableProducts[0].Name)
	assert.Equal(t, 3, result.UnavailableProducts[0].Requested)
	assert.Equal(t, 2, result.UnavailableProducts[0].Available)
}

func TestValidate_ExactStockIsEnough(t *testing.T) {
	f := newFixture()
	result := Validate(f.event, f.products, time.Now())
	assert.True(t, result.IsEligible) // qty 3 against stock 3
}

func TestValidate_InactiveAndMissingProducts(t *testing.T) {
	f := newFixture()
	missing := primitive.NewObjectID()
	f.event.Products = append(f.event.Products, models.EventProduct{ProductID: missing, Quantity: 1})
	for id, p := range f.products {
		if p.Name == "Blender" {
			p.Status = models.ProductInactive
			f.products[id] = p
		}
	}

	result := Validate(f.event, f.products, time.Now())
	assert.False(t, result.IsEligible)
	assert.Len(t, result.UnavailableProducts, 2)
}

// Validate must be pure: same inputs, same output, no mutation.
func TestValidate_IsPure(t *testing.T) {
	f := newFixture()
	now := time.Now()

	before := *f.event
	first := Validate(f.event, f.products, now)
	second := Validate(f.event, f.products, now)

	assert.Equal(t, first, second)
	assert.Equal(t, before, *f.event)
	for id, p := range f.products {
		assert.Equal(t, p, f.products[id])
	}
}

func TestBuildSellerOrders_GroupsAndSnapshotsPrices(t *testing.T) {
	f := newFixture()

	drafts, err := BuildSellerOrders(f.event, f.products)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	bySeller := map[primitive.ObjectID]OrderDraft{}
	for _, d := range drafts {
		bySeller[d.SellerID] = d
	}

	a := bySeller[f.sellerA]
	require.Len(t, a.Items, 1)
	assert.Equal(t, 2500.0, a.TotalAmount)

	b := bySeller[f.sellerB]
	require.Len(t, b.Items, 1)
	assert.Equal(t, 3, b.Items[0].Quantity)
	assert.Equal(t, 1200.0, b.Items[0].UnitPrice)
	assert.Equal(t, 3600.0, b.TotalAmount)

	// later price changes must not reach the snapshot
	for id, p := range f.products {
		p.Price *= 10
		f.products[id] = p
	}
	assert.Equal(t, 2500.0, a.Items[0].UnitPrice)
}

func TestBuildSellerOrders_OneSellerManyLines(t *testing.T) {
	seller := primitive.NewObjectID()
	p1 := models.Product{ID: primitive.NewObjectID(), SellerID: seller, Price: 100, Stock: 10, Status: models.ProductActive}
	p2 := models.Product{ID: primitive.NewObjectID(), SellerID: seller, Price: 50, Stock: 10, Status: models.ProductActive}
	event := &models.Event{
		Products: []models.EventProduct{
			{ProductID: p1.ID, Quantity: 2},
			{ProductID: p2.ID, Quantity: 4},
		},
	}
	products := map[primitive.ObjectID]models.Product{p1.ID: p1, p2.ID: p2}

	drafts, err := BuildSellerOrders(event, products)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Len(t, drafts[0].Items, 2)
	assert.Equal(t, 400.0, drafts[0].TotalAmount)
}

func TestBuildSellerOrders_Errors(t *testing.T) {
	f := newFixture()

	orphan := *f.event
	orphan.Products = []models.EventProduct{{ProductID: primitive.NewObjectID(), Quantity: 1}}
	_, err := BuildSellerOrders(&orphan, f.products)
	assert.Error(t, err)

	bad := *f.event
	bad.Products = []models.EventProduct{{ProductID: f.event.Products[0].ProductID, Quantity: 0}}
	_, err = BuildSellerOrders(&bad, f.products)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	seller := primitive.NewObjectID()
	orders := []models.Order{
		{SellerID: seller, TotalAmount: 2500},
		{SellerID: primitive.NewObjectID(), TotalAmount: 3600},
		{SellerID: seller, TotalAmount: 400},
	}
	s := Summarize(orders)
	assert.Equal(t, 3, s.TotalOrders)
	assert.Equal(t, 6500.0, s.TotalAmount)
	assert.Equal(t, 2, s.SellerCount)

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalOrders)
	assert.Zero(t, empty.TotalAmount)
}
