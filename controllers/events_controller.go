package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/giftfund-go/config"
	middleware "github.com/phillip/giftfund-go/middleware"
	models "github.com/phillip/giftfund-go/models"
	utils "github.com/phillip/giftfund-go/utils"
)

// ---------------- CREATE ----------------
func CreateEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("user_id")
		creatorID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid user id")
			return
		}

		var input struct {
			Title           string  `json:"title" binding:"required"`
			Description     string  `json:"description"`
			EventType       string  `json:"event_type" binding:"required"`
			CustomEventType string  `json:"custom_event_type"`
			EventDate       string  `json:"event_date" binding:"required"`
			EndDate         string  `json:"end_date" binding:"required"`
			Visibility      string  `json:"visibility"`
			TargetAmount    float64 `json:"target_amount"`
			Products        []struct {
				Product  string `json:"product" binding:"required"`
				Quantity int    `json:"quantity"`
			} `json:"products" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		// --- Validate event type ---
		validType := false
		for _, t := range models.EventTypes {
			if input.EventType == t {
				validType = true
				break
			}
		}
		if !validType {
			fail(c, http.StatusBadRequest, "invalid event type")
			return
		}
		if input.EventType == "other" && input.CustomEventType == "" {
			fail(c, http.StatusBadRequest, "custom_event_type is required when event_type is other")
			return
		}

		// --- Validate dates ---
		eventDate, ok := parseDate(input.EventDate)
		if !ok {
			fail(c, http.StatusBadRequest, "invalid event_date format, use RFC3339 or YYYY-MM-DD")
			return
		}
		endDate, ok := parseDate(input.EndDate)
		if !ok {
			fail(c, http.StatusBadRequest, "invalid end_date format, use RFC3339 or YYYY-MM-DD")
			return
		}
		now := time.Now()
		if eventDate.Before(now.Truncate(24 * time.Hour)) {
			fail(c, http.StatusBadRequest, "event_date cannot be in the past")
			return
		}
		if endDate.Before(eventDate) {
			fail(c, http.StatusBadRequest, "end_date cannot be before event_date")
			return
		}

		visibility := models.EventVisibility(input.Visibility)
		if visibility == "" {
			visibility = models.VisibilityPublic
		}
		if visibility != models.VisibilityPublic && visibility != models.VisibilityPrivate && visibility != models.VisibilityUnlisted {
			fail(c, http.StatusBadRequest, "invalid visibility")
			return
		}

		// --- Validate product lines ---
		if len(input.Products) == 0 {
			fail(c, http.StatusBadRequest, "at least one product is required")
			return
		}
		lines := make([]models.EventProduct, 0, len(input.Products))
		productIDs := make([]primitive.ObjectID, 0, len(input.Products))
		for _, p := range input.Products {
			pid, err := primitive.ObjectIDFromHex(p.Product)
			if err != nil {
				fail(c, http.StatusBadRequest, "invalid product id "+p.Product)
				return
			}
			qty := p.Quantity
			if qty == 0 {
				qty = 1
			}
			if qty < 1 {
				fail(c, http.StatusBadRequest, "product quantity must be at least 1")
				return
			}
			lines = append(lines, models.EventProduct{ProductID: pid, Quantity: qty, Status: models.LinePending})
			productIDs = append(productIDs, pid)
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		products, err := loadProducts(ctx, cfg, productIDs)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not load products")
			return
		}
		var computedTarget float64
		for _, line := range lines {
			product, ok := products[line.ProductID]
			if !ok {
				fail(c, http.StatusBadRequest, "unknown product "+line.ProductID.Hex())
				return
			}
			if !product.Purchasable() {
				fail(c, http.StatusBadRequest, "product "+product.Name+" is not available")
				return
			}
			computedTarget += product.Price * float64(line.Quantity)
		}

		targetAmount := input.TargetAmount
		if targetAmount <= 0 {
			targetAmount = computedTarget
		}

		event := models.Event{
			ID:              primitive.NewObjectID(),
			CreatorID:       creatorID,
			Title:           input.Title,
			Description:     input.Description,
			EventType:       input.EventType,
			CustomEventType: input.CustomEventType,
			TargetAmount:    targetAmount,
			CurrentAmount:   0,
			Products:        lines,
			Status:          models.EventStatusPending,
			Visibility:      visibility,
			EventDate:       eventDate,
			EndDate:         endDate,
			InvitedUsers:    []models.Invitation{},
			Images:          []string{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if visibility == models.VisibilityPrivate {
			event.AccessCode = uuid.NewString()[:8]
		}

		if _, err := cfg.Collection("events").InsertOne(ctx, event); err != nil {
			fail(c, http.StatusInternalServerError, "could not create event")
			return
		}

		// Creator gets the access code back once, on creation.
		c.JSON(http.StatusCreated, gin.H{"event": event, "access_code": event.AccessCode})
	}
}

// ---------------- LIST ----------------
func ListEvents(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("user_id")
		userID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid user id")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()

		filter := bson.M{"creator_id": userID}
		if q := c.Query("q"); q != "" {
			filter["title"] = bson.M{"$regex": q, "$options": "i"}
		}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}

		cursor, err := cfg.Collection("events").Find(ctx, filter)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not fetch events")
			return
		}

		var events []models.Event
		if err := cursor.All(ctx, &events); err != nil {
			fail(c, http.StatusInternalServerError, "could not decode events")
			return
		}
		if len(events) == 0 {
			c.JSON(http.StatusOK, []models.Event{})
			return
		}

		latest := events[0]
		for _, ev := range events {
			if ev.UpdatedAt.After(latest.UpdatedAt) {
				latest = ev
			}
		}
		etag := utils.GenerateETag(latest.ID, latest.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", latest.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, events)
	}
}

// ---------------- GET ----------------
func GetEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
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

		// Private events need the access code unless the caller owns the
		// event or is an admin.
		if event.Visibility == models.VisibilityPrivate &&
			!event.IsOwner(c.GetString("user_id")) && !middleware.IsAdmin(c) {
			if c.Query("accessCode") != event.AccessCode {
				c.JSON(http.StatusForbidden, gin.H{
					"success":              false,
					"message":              "this event is private",
					"requires_access_code": true,
				})
				return
			}
		}

		etag := utils.GenerateETag(event.ID, event.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, event)
	}
}

// ---------------- STATUS ----------------
func UpdateEventStatus(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}

		var input struct {
			Status models.EventStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if !models.ValidEventStatus(input.Status) {
			fail(c, http.StatusBadRequest, "unknown status "+string(input.Status))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		col := cfg.Collection("events")
		var event models.Event
		if err := col.FindOne(ctx, bson.M{"_id": eventID}).Decode(&event); err != nil {
			fail(c, http.StatusNotFound, "event not found")
			return
		}

		if !event.IsOwner(c.GetString("user_id")) && !middleware.IsAdmin(c) {
			fail(c, http.StatusForbidden, "only the event creator can change its status")
			return
		}

		now := time.Now()
		if err := event.CanTransitionTo(input.Status, now); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		update := bson.M{"status": input.Status, "updated_at": now}
		if input.Status == models.EventStatusCompleted {
			update["completed_at"] = now
		}

		// Guard on the status we just read so a concurrent transition loses
		// cleanly instead of clobbering.
		res, err := col.UpdateOne(ctx,
			bson.M{"_id": eventID, "status": event.Status},
			bson.M{"$set": update})
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not update event status")
			return
		}
		if res.MatchedCount == 0 {
			fail(c, http.StatusConflict, "event status changed concurrently, retry")
			return
		}

		event.Status = input.Status
		event.UpdatedAt = now
		c.JSON(http.StatusOK, gin.H{"message": "event status updated", "event": event})
	}
}

// ---------------- DELETE ----------------
// Events holding contributed money are never removed; delete becomes a
// cancellation so the ledger keeps its referent.
func DeleteEvent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		col := cfg.Collection("events")
		var event models.Event
		if err := col.FindOne(ctx, bson.M{"_id": eventID}).Decode(&event); err != nil {
			fail(c, http.StatusNotFound, "event not found")
			return
		}

		if !event.IsOwner(c.GetString("user_id")) && !middleware.IsAdmin(c) {
			fail(c, http.StatusForbidden, "only the event creator can delete this event")
			return
		}

		if event.Deletable() {
			if _, err := col.DeleteOne(ctx, bson.M{"_id": eventID}); err != nil {
				fail(c, http.StatusInternalServerError, "failed to delete event")
				return
			}
			for _, img := range event.Images {
				utils.DeleteFromCloudinary(img)
			}
			c.JSON(http.StatusOK, gin.H{"message": "event deleted", "id": eventID.Hex()})
			return
		}

		now := time.Now()
		if err := event.CanTransitionTo(models.EventStatusCancelled, now); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		res, err := col.UpdateOne(ctx,
			bson.M{"_id": eventID, "status": event.Status},
			bson.M{"$set": bson.M{"status": models.EventStatusCancelled, "updated_at": now}})
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to cancel event")
			return
		}
		if res.MatchedCount == 0 {
			fail(c, http.StatusConflict, "event status changed concurrently, retry")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "event has contributions and was cancelled instead of deleted",
			"id":      eventID.Hex(),
			"status":  models.EventStatusCancelled,
		})
	}
}

// ---------------- IMAGES ----------------
func UploadEventImages(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		col := cfg.Collection("events")
		var event models.Event
		if err := col.FindOne(ctx, bson.M{"_id": eventID}).Decode(&event); err != nil {
			fail(c, http.StatusNotFound, "event not found")
			return
		}
		if !event.IsOwner(c.GetString("user_id")) && !middleware.IsAdmin(c) {
			fail(c, http.StatusForbidden, "only the event creator can add images")
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid form data")
			return
		}

		var imageURLs []string
		for _, fileHeader := range form.File["images"] {
			file, err := fileHeader.Open()
			if err != nil {
				fail(c, http.StatusInternalServerError, "failed to open file")
				return
			}
			url, err := utils.UploadToCloudinary(file, fileHeader)
			file.Close()
			if err != nil {
				fail(c, http.StatusInternalServerError, "image upload failed")
				return
			}
			imageURLs = append(imageURLs, url)
		}
		if len(imageURLs) == 0 {
			fail(c, http.StatusBadRequest, "no images provided")
			return
		}

		_, err = col.UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{
			"$push": bson.M{"images": bson.M{"$each": imageURLs}},
			"$set":  bson.M{"updated_at": time.Now()},
		})
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not save images")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "images uploaded", "images": imageURLs})
	}
}

// loadProducts fetches the given products into a map keyed by id.
func loadProducts(ctx context.Context, cfg *config.Config, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	cursor, err := cfg.Collection("products").Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
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
