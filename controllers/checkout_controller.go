package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	checkout "github.com/phillip/giftfund-go/checkout"
	config "github.com/phillip/giftfund-go/config"
	middleware "github.com/phillip/giftfund-go/middleware"
	models "github.com/phillip/giftfund-go/models"
	notify "github.com/phillip/giftfund-go/notify"
)

var (
	errAlreadyCompleted = errors.New("event checkout already completed")
	errStockConflict    = errors.New("a product ran out of stock during checkout")
)

type ineligibleError struct {
	reasons []string
}

func (e *ineligibleError) Error() string { return "event is not eligible for checkout" }

// ---------------- ELIGIBILITY ----------------
func CheckoutEligibility(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()

		var event models.Event
		err = cfg.Collection("events").FindOne(ctx, bson.M{"_id": eventID}).Decode(&event)
		if err != nil {
			fail(c, http.StatusNotFound, "event not found")
			return
		}
		if !event.IsOwner(c.GetString("user_id")) && !middleware.IsAdmin(c) {
			fail(c, http.StatusForbidden, "only the event creator can check eligibility")
			return
		}

		products, err := loadProducts(ctx, cfg, eventProductIDs(&event))
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not load products")
			return
		}

		c.JSON(http.StatusOK, checkout.Validate(&event, products, time.Now()))
	}
}

// ---------------- CHECKOUT ----------------
// CompleteEventCheckout converts a funded event into one order per seller.
// Everything runs inside a single Mongo transaction: the status-guarded event
// update and the stock-guarded decrements mean at most one checkout can ever
// succeed per event, and a lost stock race rolls the whole fan-out back.
func CompleteEventCheckout(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}
		uid := c.GetString("user_id")
		buyerID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid user id")
			return
		}

		var input struct {
			ShippingDetails models.ShippingDetails `json:"shipping_details" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if input.ShippingDetails.Name == "" || input.ShippingDetails.Address == "" || input.ShippingDetails.Phone == "" {
			fail(c, http.StatusBadRequest, "shipping details need a name, address and phone")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var event models.Event
		err = cfg.Collection("events").FindOne(ctx, bson.M{"_id": eventID}).Decode(&event)
		if err != nil {
			fail(c, http.StatusNotFound, "event not found")
			return
		}
		if !event.IsOwner(uid) && !middleware.IsAdmin(c) {
			fail(c, http.StatusForbidden, "only the event creator can complete checkout")
			return
		}
		// An admin checking out on behalf of the creator still buys as the
		// creator.
		buyerID = event.CreatorID

		session, err := cfg.MongoClient.StartSession()
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not start checkout transaction")
			return
		}
		defer session.EndSession(ctx)

		now := time.Now()
		result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return runCheckout(sc, cfg, eventID, buyerID, input.ShippingDetails, now)
		})
		if err != nil {
			var inel *ineligibleError
			switch {
			case errors.As(err, &inel):
				failWithReasons(c, http.StatusBadRequest, "event is not eligible for checkout", inel.reasons)
			case errors.Is(err, errAlreadyCompleted):
				fail(c, http.StatusConflict, "event checkout already completed")
			case errors.Is(err, errStockConflict):
				fail(c, http.StatusConflict, "a product ran out of stock during checkout, nothing was charged")
			default:
				fail(c, http.StatusInternalServerError, "checkout failed and was rolled back")
			}
			return
		}

		orders := result.([]models.Order)
		for _, o := range orders {
			notify.Dispatch(cfg.Notifier, o.SellerID, notify.TypeOrderCreated, map[string]interface{}{
				"order_id": o.ID.Hex(),
				"event_id": eventID.Hex(),
				"total":    o.TotalAmount,
			})
		}
		notify.Dispatch(cfg.Notifier, event.CreatorID, notify.TypeEventCheckedOut, map[string]interface{}{
			"event_id":    eventID.Hex(),
			"order_count": len(orders),
		})

		c.JSON(http.StatusOK, gin.H{
			"event": gin.H{
				"id":           eventID.Hex(),
				"title":        event.Title,
				"status":       models.EventStatusCompleted,
				"completed_at": now,
			},
			"orders":  orders,
			"summary": checkout.Summarize(orders),
		})
	}
}

// runCheckout is the transaction body. Any returned error aborts the
// transaction and rolls back every order insert and stock decrement.
func runCheckout(sc mongo.SessionContext, cfg *config.Config, eventID, buyerID primitive.ObjectID, shipping models.ShippingDetails, now time.Time) ([]models.Order, error) {
	eventCol := cfg.Collection("events")
	productCol := cfg.Collection("products")
	orderCol := cfg.Collection("orders")

	// Re-read inside the transaction; the pre-transaction copy may be stale.
	var event models.Event
	if err := eventCol.FindOne(sc, bson.M{"_id": eventID}).Decode(&event); err != nil {
		return nil, err
	}
	if event.Status == models.EventStatusCompleted {
		return nil, errAlreadyCompleted
	}

	products, err := loadProductsIn(sc, productCol, eventProductIDs(&event))
	if err != nil {
		return nil, err
	}

	if elig := checkout.Validate(&event, products, now); !elig.IsEligible {
		return nil, &ineligibleError{reasons: elig.Reasons}
	}

	drafts, err := checkout.BuildSellerOrders(&event, products)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(drafts))
	orderIDs := make([]primitive.ObjectID, 0, len(drafts))
	for _, draft := range drafts {
		order := models.Order{
			ID:            primitive.NewObjectID(),
			BuyerID:       buyerID,
			SellerID:      draft.SellerID,
			Items:         draft.Items,
			TotalAmount:   draft.TotalAmount,
			Status:        models.OrderConfirmed,
			PaymentStatus: models.PaymentCompleted, // funds already collected as contributions
			Timeline: []models.TimelineEntry{{
				Status:      models.OrderConfirmed,
				Description: "Order created from event checkout",
				At:          now,
			}},
			ShippingDetails: shipping,
			Source:          models.OrderSourceEvent,
			SourceEventID:   eventID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if _, err := orderCol.InsertOne(sc, order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
		orderIDs = append(orderIDs, order.ID)
	}

	// Conditional decrement: "subtract only if enough remains" makes two
	// events racing for the same last units serialize correctly.
	for _, order := range orders {
		for _, item := range order.Items {
			res, err := productCol.UpdateOne(sc,
				bson.M{"_id": item.ProductID, "stock": bson.M{"$gte": item.Quantity}},
				bson.M{
					"$inc": bson.M{"stock": -item.Quantity},
					"$set": bson.M{"updated_at": now},
				})
			if err != nil {
				return nil, err
			}
			if res.MatchedCount == 0 {
				return nil, errStockConflict
			}
		}
	}

	// Status guard: only one transaction can move active -> completed, so a
	// concurrent checkout aborts here instead of fanning out twice.
	res, err := eventCol.UpdateOne(sc,
		bson.M{"_id": eventID, "status": models.EventStatusActive},
		bson.M{"$set": bson.M{
			"status":           models.EventStatusCompleted,
			"completed_at":     now,
			"order_ids":        orderIDs,
			"shipping_details": shipping,
			"products.$[].status": models.LinePurchased,
			"updated_at":       now,
		}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, errAlreadyCompleted
	}

	return orders, nil
}

func eventProductIDs(event *models.Event) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(event.Products))
	for _, line := range event.Products {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// loadProductsIn is the session-aware variant of loadProducts.
func loadProductsIn(ctx context.Context, col *mongo.Collection, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	cursor, err := col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}
