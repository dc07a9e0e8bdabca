package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/giftfund-go/config"
	middleware "github.com/phillip/giftfund-go/middleware"
	models "github.com/phillip/giftfund-go/models"
	notify "github.com/phillip/giftfund-go/notify"
	utils "github.com/phillip/giftfund-go/utils"
)

// ---------------- LIST ----------------
func ListOrders(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("user_id")
		userID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid user id")
			return
		}

		var filter bson.M
		switch c.Query("role") {
		case "seller":
			filter = bson.M{"seller_id": userID}
		case "buyer":
			filter = bson.M{"buyer_id": userID}
		default:
			filter = bson.M{"$or": []bson.M{{"buyer_id": userID}, {"seller_id": userID}}}
		}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}

		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()

		cursor, err := cfg.Collection("orders").Find(ctx, filter)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not fetch orders")
			return
		}
		var orders []models.Order
		if err := cursor.All(ctx, &orders); err != nil {
			fail(c, http.StatusInternalServerError, "could not decode orders")
			return
		}
		if orders == nil {
			orders = []models.Order{}
		}

		c.JSON(http.StatusOK, orders)
	}
}

// ---------------- GET ----------------
func GetOrder(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid order id")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		var order models.Order
		err = cfg.Collection("orders").FindOne(ctx, bson.M{"_id": oid}).Decode(&order)
		if err != nil {
			fail(c, http.StatusNotFound, "order not found")
			return
		}

		uid := c.GetString("user_id")
		if order.BuyerID.Hex() != uid && order.SellerID.Hex() != uid && !middleware.IsAdmin(c) {
			fail(c, http.StatusForbidden, "access denied")
			return
		}

		etag := utils.GenerateETag(order.ID, order.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, order)
	}
}

// ---------------- STATUS ----------------
// Sellers progress their own orders; each change appends to the timeline.
// Totals are never touched here: the price snapshot from checkout stands.
func UpdateOrderStatus(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid order id")
			return
		}

		var input struct {
			Status      models.OrderStatus `json:"status" binding:"required"`
			Description string             `json:"description"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if !models.ValidOrderStatus(input.Status) {
			fail(c, http.StatusBadRequest, "unknown status "+string(input.Status))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		col := cfg.Collection("orders")
		var order models.Order
		if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&order); err != nil {
			fail(c, http.StatusNotFound, "order not found")
			return
		}

		if order.SellerID.Hex() != c.GetString("user_id") && !middleware.IsAdmin(c) {
			fail(c, http.StatusForbidden, "only the seller can update this order")
			return
		}

		if err := order.CanTransitionTo(input.Status); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		description := input.Description
		if description == "" {
			description = "Order marked " + string(input.Status)
		}

		now := time.Now()
		res, err := col.UpdateOne(ctx,
			bson.M{"_id": oid, "status": order.Status},
			bson.M{
				"$set": bson.M{"status": input.Status, "updated_at": now},
				"$push": bson.M{"timeline": models.TimelineEntry{
					Status:      input.Status,
					Description: description,
					At:          now,
				}},
			})
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not update order status")
			return
		}
		if res.MatchedCount == 0 {
			fail(c, http.StatusConflict, "order status changed concurrently, retry")
			return
		}

		notify.Dispatch(cfg.Notifier, order.BuyerID, notify.TypeOrderStatusUpdated, map[string]interface{}{
			"order_id": oid.Hex(),
			"status":   input.Status,
		})

		c.JSON(http.StatusOK, gin.H{"message": "order status updated", "id": oid.Hex(), "status": input.Status})
	}
}
