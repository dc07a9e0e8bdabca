//go:build integration

// These tests need a real MongoDB replica set (transactions do not run on a
// standalone server):
//
//	MONGODB_TEST_URI="mongodb://localhost:27017/?replicaSet=rs0" go test -tags integration ./controllers/
package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	config "github.com/phillip/giftfund-go/config"
	models "github.com/phillip/giftfund-go/models"
	notify "github.com/phillip/giftfund-go/notify"
)

func testConfig(t *testing.T) (*config.Config, context.Context) {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	cfg := &config.Config{
		MongoClient: client,
		DBName:      "giftfund_test",
		Notifier:    notify.Noop{},
	}
	require.NoError(t, client.Database(cfg.DBName).Drop(ctx))
	return cfg, ctx
}

func seedProduct(t *testing.T, ctx context.Context, cfg *config.Config, seller primitive.ObjectID, price float64, stock int) models.Product {
	t.Helper()
	p := models.Product{
		ID: primitive.NewObjectID(), SellerID: seller, Name: "Gift",
		Price: price, Stock: stock, Status: models.ProductActive,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	_, err := cfg.Collection("products").InsertOne(ctx, p)
	require.NoError(t, err)
	return p
}

func seedFundedEvent(t *testing.T, ctx context.Context, cfg *config.Config, lines []models.EventProduct, target, current float64) models.Event {
	t.Helper()
	now := time.Now()
	e := models.Event{
		ID: primitive.NewObjectID(), CreatorID: primitive.NewObjectID(),
		Title: "Birthday", EventType: "birthday",
		TargetAmount: target, CurrentAmount: current,
		Products: lines, Status: models.EventStatusActive,
		Visibility: models.VisibilityPublic,
		EventDate:  now.Add(24 * time.Hour), EndDate: now.Add(48 * time.Hour),
		CreatedAt: now, UpdatedAt: now,
	}
	_, err := cfg.Collection("events").InsertOne(ctx, e)
	require.NoError(t, err)
	return e
}

func attemptCheckout(ctx context.Context, cfg *config.Config, eventID, buyer primitive.ObjectID) error {
	session, err := cfg.MongoClient.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	shipping := models.ShippingDetails{Name: "Amina", Address: "Moi Ave", Phone: "254712345678"}
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return runCheckout(sc, cfg, eventID, buyer, shipping, time.Now())
	})
	return err
}

// Two concurrent checkouts of the same event: exactly one wins, exactly one
// fan-out of orders exists, and the event completes once.
func TestCheckout_ConcurrentExclusivity(t *testing.T) {
	cfg, ctx := testConfig(t)

	seller := primitive.NewObjectID()
	p := seedProduct(t, ctx, cfg, seller, 2500, 5)
	event := seedFundedEvent(t, ctx, cfg,
		[]models.EventProduct{{ProductID: p.ID, Quantity: 1, Status: models.LinePending}},
		2500, 2500)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = attemptCheckout(ctx, cfg, event.ID, event.CreatorID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one checkout may win: %v", errs)

	count, err := cfg.Collection("orders").CountDocuments(ctx, bson.M{"source_event_id": event.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var after models.Event
	require.NoError(t, cfg.Collection("events").FindOne(ctx, bson.M{"_id": event.ID}).Decode(&after))
	assert.Equal(t, models.EventStatusCompleted, after.Status)

	var stocked models.Product
	require.NoError(t, cfg.Collection("products").FindOne(ctx, bson.M{"_id": p.ID}).Decode(&stocked))
	assert.Equal(t, 4, stocked.Stock)
}

// Two events compete for the same product's last units; the combined demand
// exceeds stock so only one checkout may succeed and stock never goes
// negative.
func TestCheckout_StockRaceAcrossEvents(t *testing.T) {
	cfg, ctx := testConfig(t)

	seller := primitive.NewObjectID()
	p := seedProduct(t, ctx, cfg, seller, 1000, 3)
	lines := []models.EventProduct{{ProductID: p.ID, Quantity: 2, Status: models.LinePending}}
	eventA := seedFundedEvent(t, ctx, cfg, lines, 2000, 2000)
	eventB := seedFundedEvent(t, ctx, cfg, lines, 2000, 2000)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = attemptCheckout(ctx, cfg, eventA.ID, eventA.CreatorID) }()
	go func() { defer wg.Done(); errs[1] = attemptCheckout(ctx, cfg, eventB.ID, eventB.CreatorID) }()
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "combined demand exceeds stock: %v", errs)

	var stocked models.Product
	require.NoError(t, cfg.Collection("products").FindOne(ctx, bson.M{"_id": p.ID}).Decode(&stocked))
	assert.GreaterOrEqual(t, stocked.Stock, 0)
	assert.Equal(t, 1, stocked.Stock)

	count, err := cfg.Collection("orders").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// A completed-then-failed callback replay must not regress the contribution
// or desynchronize current_amount from the completed ledger.
func TestConfirm_CompletedThenFailedReplay(t *testing.T) {
	cfg, ctx := testConfig(t)

	seller := primitive.NewObjectID()
	p := seedProduct(t, ctx, cfg, seller, 10000, 5)
	event := seedFundedEvent(t, ctx, cfg,
		[]models.EventProduct{{ProductID: p.ID, Quantity: 1, Status: models.LinePending}},
		10000, 0)

	now := time.Now()
	contribution := models.Contribution{
		ID: primitive.NewObjectID(), EventID: event.ID,
		ContributorID: primitive.NewObjectID(), Amount: 8500,
		Currency: "KES", Method: models.PaymentMpesa,
		PaymentStatus: models.PaymentPending,
		PaymentRef:    "CTB-replay-test",
		CreatedAt:     now, UpdatedAt: now,
	}
	_, err := cfg.Collection("contributions").InsertOne(ctx, contribution)
	require.NoError(t, err)

	ctn, ev, err := applyPaymentResult(ctx, cfg, contribution.PaymentRef, models.PaymentCompleted, "RCP123")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, ctn.PaymentStatus)
	assert.Equal(t, 8500.0, ev.CurrentAmount)

	// the replay: same reference, now claiming failure
	ctn, ev, err = applyPaymentResult(ctx, cfg, contribution.PaymentRef, models.PaymentFailed, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, ctn.PaymentStatus, "terminal status must not regress")
	assert.Equal(t, 8500.0, ev.CurrentAmount, "total must still match the completed ledger")

	var stored models.Contribution
	require.NoError(t, cfg.Collection("contributions").FindOne(ctx, bson.M{"_id": contribution.ID}).Decode(&stored))
	assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
}

// Contribution reads are scoped to the contributor, event creator and admins.
func TestGetContribution_Authorization(t *testing.T) {
	cfg, ctx := testConfig(t)
	gin.SetMode(gin.TestMode)

	seller := primitive.NewObjectID()
	p := seedProduct(t, ctx, cfg, seller, 1000, 5)
	event := seedFundedEvent(t, ctx, cfg,
		[]models.EventProduct{{ProductID: p.ID, Quantity: 1, Status: models.LinePending}},
		1000, 0)

	contributor := primitive.NewObjectID()
	contribution := models.Contribution{
		ID: primitive.NewObjectID(), EventID: event.ID,
		ContributorID: contributor, Amount: 500,
		PaymentStatus: models.PaymentPending, PaymentRef: "CTB-authz-test",
		PhoneNumber: "254712345678",
		CreatedAt:   time.Now(), UpdatedAt: time.Now(),
	}
	_, err := cfg.Collection("contributions").InsertOne(ctx, contribution)
	require.NoError(t, err)

	get := func(uid, role string) int {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/contributions/status/"+contribution.ID.Hex(), nil)
		c.Params = gin.Params{{Key: "id", Value: contribution.ID.Hex()}}
		c.Set("user_id", uid)
		c.Set("role", role)
		GetContribution(cfg)(c)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get(contributor.Hex(), "user"))
	assert.Equal(t, http.StatusOK, get(event.CreatorID.Hex(), "user"))
	assert.Equal(t, http.StatusOK, get(primitive.NewObjectID().Hex(), "admin"))
	assert.Equal(t, http.StatusForbidden, get(primitive.NewObjectID().Hex(), "user"))
}
