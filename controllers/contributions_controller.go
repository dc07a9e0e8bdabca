package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/giftfund-go/config"
	middleware "github.com/phillip/giftfund-go/middleware"
	models "github.com/phillip/giftfund-go/models"
	notify "github.com/phillip/giftfund-go/notify"
	utils "github.com/phillip/giftfund-go/utils"
)

// ---------------- CREATE ----------------
func CreateContribution(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("user_id")
		contributorID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid user id")
			return
		}

		var input struct {
			EventID     string  `json:"event_id" binding:"required"`
			Amount      float64 `json:"amount" binding:"required"`
			Method      string  `json:"payment_method" binding:"required"`
			PhoneNumber string  `json:"phone_number"`
			Message     string  `json:"message"`
			Anonymous   bool    `json:"anonymous"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		eventID, err := primitive.ObjectIDFromHex(input.EventID)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}
		if input.Amount <= 0 {
			fail(c, http.StatusBadRequest, "amount must be greater than 0")
			return
		}
		method := models.PaymentMethod(input.Method)
		if !models.ValidPaymentMethod(method) {
			fail(c, http.StatusBadRequest, "unsupported payment method "+input.Method)
			return
		}
		if method == models.PaymentMpesa && !utils.ValidPhoneNumber(input.PhoneNumber) {
			fail(c, http.StatusBadRequest, "a valid phone number is required for mpesa payments")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		var event models.Event
		err = cfg.Collection("events").FindOne(ctx, bson.M{"_id": eventID}).Decode(&event)
		if err != nil {
			fail(c, http.StatusNotFound, "event not found")
			return
		}
		if !event.AcceptingContributions() {
			fail(c, http.StatusBadRequest, fmt.Sprintf("event is %s and not accepting contributions", event.Status))
			return
		}

		now := time.Now()
		contribution := models.Contribution{
			ID:            primitive.NewObjectID(),
			EventID:       eventID,
			ContributorID: contributorID,
			Anonymous:     input.Anonymous,
			Amount:        input.Amount,
			Currency:      "KES",
			Method:        method,
			PaymentStatus: models.PaymentPending,
			PaymentRef:    "CTB-" + uuid.NewString(),
			PhoneNumber:   input.PhoneNumber,
			Message:       input.Message,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		// The row is persisted before talking to the gateway so a network
		// failure can never leave money unaccounted for: worst case the
		// contribution stays pending and initiation is retried.
		if _, err := cfg.Collection("contributions").InsertOne(ctx, contribution); err != nil {
			fail(c, http.StatusInternalServerError, "could not create contribution")
			return
		}

		var payment gin.H
		switch method {
		case models.PaymentMpesa:
			stk, err := utils.InitiateSTKPush(input.PhoneNumber, input.Amount, contribution.PaymentRef)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{
					"success":      false,
					"message":      "payment initiation failed, contribution saved as pending",
					"contribution": contribution.Redacted(),
				})
				return
			}
			// The CheckoutRequestID is what the Daraja callback echoes back;
			// without it on the row the confirmation can never be matched,
			// so a failed write here must surface, not be swallowed.
			_, err = cfg.Collection("contributions").UpdateOne(ctx,
				bson.M{"_id": contribution.ID},
				bson.M{"$set": bson.M{"provider_txn_id": stk.CheckoutRequestID, "payment_status": models.PaymentProcessing, "updated_at": time.Now()}})
			if err != nil {
				log.Printf("could not store CheckoutRequestID %s on contribution %s: %v",
					stk.CheckoutRequestID, contribution.ID.Hex(), err)
				c.JSON(http.StatusBadGateway, gin.H{
					"success":      false,
					"message":      "payment prompt sent but could not be tracked, contribution remains pending; retry initiation",
					"contribution": contribution.Redacted(),
				})
				return
			}
			contribution.ProviderTxnID = stk.CheckoutRequestID
			contribution.PaymentStatus = models.PaymentProcessing
			payment = gin.H{
				"provider":            "mpesa",
				"status":              models.PaymentProcessing,
				"checkout_request_id": stk.CheckoutRequestID,
				"customer_message":    stk.CustomerMessage,
			}
		default:
			// Card and PayPal charges are collected by the hosted provider
			// pages; we only hand out the reference they confirm against.
			payment = gin.H{
				"provider":  method,
				"status":    models.PaymentPending,
				"reference": contribution.PaymentRef,
			}
		}

		c.JSON(http.StatusCreated, gin.H{
			"contribution": contribution.Redacted(),
			"payment":      payment,
		})
	}
}

// ---------------- CONFIRM ----------------
// ConfirmContribution is the provider-agnostic confirmation webhook.
func ConfirmContribution(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Reference     string `json:"reference" binding:"required"`
			Status        string `json:"status" binding:"required"`
			ProviderTxnID string `json:"provider_transaction_id"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if input.Status != string(models.PaymentCompleted) && input.Status != string(models.PaymentFailed) {
			fail(c, http.StatusBadRequest, "status must be completed or failed")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()

		contribution, event, err := applyPaymentResult(ctx, cfg,
			input.Reference, models.PaymentStatus(input.Status), input.ProviderTxnID)
		if err != nil {
			if err == errContributionNotFound {
				fail(c, http.StatusNotFound, "no contribution matches that reference")
				return
			}
			fail(c, http.StatusInternalServerError, "could not apply payment result")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":        "payment result recorded",
			"contribution":   contribution.Redacted(),
			"current_amount": event.CurrentAmount,
		})
	}
}

// MpesaCallback unwraps the Daraja STK envelope and feeds the shared
// confirmation path. ResultCode 0 means paid.
func MpesaCallback(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Body struct {
				StkCallback struct {
					ResultCode        int    `json:"ResultCode"`
					ResultDesc        string `json:"ResultDesc"`
					CheckoutRequestID string `json:"CheckoutRequestID"`
					CallbackMetadata  struct {
						Item []struct {
							Name  string      `json:"Name"`
							Value interface{} `json:"Value"`
						} `json:"Item"`
					} `json:"CallbackMetadata"`
				} `json:"stkCallback"`
			} `json:"Body"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			fail(c, http.StatusBadRequest, "invalid callback payload")
			return
		}

		cb := body.Body.StkCallback
		status := models.PaymentCompleted
		if cb.ResultCode != 0 {
			status = models.PaymentFailed
		}
		var receipt string
		for _, item := range cb.CallbackMetadata.Item {
			if item.Name == "MpesaReceiptNumber" {
				receipt, _ = item.Value.(string)
			}
		}

		// Daraja echoes our AccountReference inside the metadata on some
		// shortcode types but the CheckoutRequestID is always present, so
		// contributions are matched on whichever we stored.
		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()

		_, _, err := applyPaymentResult(ctx, cfg, cb.CheckoutRequestID, status, receipt)
		if err != nil && err != errContributionNotFound {
			fail(c, http.StatusInternalServerError, "could not apply payment result")
			return
		}

		// Daraja only wants an acknowledgement.
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
	}
}

var errContributionNotFound = fmt.Errorf("contribution not found")

// applyPaymentResult records a gateway outcome and re-aggregates the event
// total from every completed contribution. Re-aggregation (rather than an
// increment) makes replayed and out-of-order callbacks converge on the same
// current_amount.
func applyPaymentResult(ctx context.Context, cfg *config.Config, reference string, status models.PaymentStatus, providerTxnID string) (*models.Contribution, *models.Event, error) {
	contribCol := cfg.Collection("contributions")
	eventCol := cfg.Collection("events")

	var contribution models.Contribution
	err := contribCol.FindOne(ctx, bson.M{"$or": []bson.M{
		{"payment_reference": reference},
		{"provider_txn_id": reference},
	}}).Decode(&contribution)
	if err != nil {
		return nil, nil, errContributionNotFound
	}

	// Terminal statuses never change again: a replayed or out-of-order
	// callback must neither fail a completed contribution nor resurrect a
	// failed one. The guard sits in the filter too, so a concurrent
	// confirmation cannot slip in between the read and the write.
	now := time.Now()
	applied := false
	if !contribution.PaymentStatus.Terminal() {
		update := bson.M{"payment_status": status, "updated_at": now}
		if providerTxnID != "" {
			update["provider_txn_id"] = providerTxnID
		}
		res, err := contribCol.UpdateOne(ctx, bson.M{
			"_id": contribution.ID,
			"payment_status": bson.M{"$in": []models.PaymentStatus{
				models.PaymentPending, models.PaymentProcessing,
			}},
		}, bson.M{"$set": update})
		if err != nil {
			return nil, nil, err
		}
		if res.MatchedCount > 0 {
			contribution.PaymentStatus = status
			contribution.UpdatedAt = now
			applied = true
		}
	}

	var event models.Event
	if err := eventCol.FindOne(ctx, bson.M{"_id": contribution.EventID}).Decode(&event); err != nil {
		return nil, nil, err
	}

	// Re-aggregate no matter what the callback said: current_amount must
	// always equal the completed subset of the ledger, and a replay that was
	// ignored above still converges here.
	cursor, err := contribCol.Find(ctx, bson.M{
		"event_id":       contribution.EventID,
		"payment_status": models.PaymentCompleted,
	})
	if err != nil {
		return nil, nil, err
	}
	var completed []models.Contribution
	if err := cursor.All(ctx, &completed); err != nil {
		return nil, nil, err
	}
	total := models.SumCompleted(completed)

	eventUpdate := bson.M{"current_amount": total, "updated_at": now}
	if total >= event.TargetAmount && !event.FullyFunded {
		eventUpdate["fully_funded"] = true
		eventUpdate["fully_funded_at"] = now
	}
	// First landed contribution flips a pending event to active.
	event.CurrentAmount = total
	if event.Status == models.EventStatusPending && event.CanTransitionTo(models.EventStatusActive, now) == nil {
		eventUpdate["status"] = models.EventStatusActive
		event.Status = models.EventStatusActive
	}

	if _, err := eventCol.UpdateOne(ctx, bson.M{"_id": event.ID}, bson.M{"$set": eventUpdate}); err != nil {
		return nil, nil, err
	}

	// Only a freshly landed completion notifies; ignored replays and failed
	// payments stay quiet.
	if applied && status == models.PaymentCompleted {
		notify.Dispatch(cfg.Notifier, event.CreatorID, notify.TypeContributionReceived, map[string]interface{}{
			"event_id": event.ID.Hex(),
			"amount":   contribution.Amount,
			"total":    total,
		})
		if total >= event.TargetAmount && !event.FullyFunded {
			notify.Dispatch(cfg.Notifier, event.CreatorID, notify.TypeEventFullyFunded, map[string]interface{}{
				"event_id": event.ID.Hex(),
				"total":    total,
			})
		}
	}

	return &contribution, &event, nil
}

// ---------------- LIST ----------------
// Non-owners only ever see completed contributions; anonymous contributor
// identities are redacted for everyone.
func ListEventContributions(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("eventId"))
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

		filter := bson.M{"event_id": eventID}
		if !event.IsOwner(c.GetString("user_id")) && !middleware.IsAdmin(c) {
			filter["payment_status"] = models.PaymentCompleted
		}

		cursor, err := cfg.Collection("contributions").Find(ctx, filter)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not fetch contributions")
			return
		}
		var contributions []models.Contribution
		if err := cursor.All(ctx, &contributions); err != nil {
			fail(c, http.StatusInternalServerError, "could not decode contributions")
			return
		}

		out := make([]models.Contribution, 0, len(contributions))
		for _, ctn := range contributions {
			out = append(out, ctn.Redacted())
		}

		c.JSON(http.StatusOK, gin.H{
			"contributions": out,
			"stats":         models.AggregateStats(contributions),
		})
	}
}

// ---------------- GET ----------------
func GetContribution(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid contribution id")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		var contribution models.Contribution
		err = cfg.Collection("contributions").FindOne(ctx, bson.M{"_id": oid}).Decode(&contribution)
		if err != nil {
			fail(c, http.StatusNotFound, "contribution not found")
			return
		}

		// Readable by the contributor, the event creator, and admins only;
		// amounts, messages and phone numbers are not public.
		uid := c.GetString("user_id")
		if contribution.ContributorID.Hex() != uid && !middleware.IsAdmin(c) {
			var event models.Event
			err = cfg.Collection("events").FindOne(ctx, bson.M{"_id": contribution.EventID}).Decode(&event)
			if err != nil || !event.IsOwner(uid) {
				fail(c, http.StatusForbidden, "access denied")
				return
			}
		}

		etag := utils.GenerateETag(contribution.ID, contribution.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, contribution.Redacted())
	}
}
