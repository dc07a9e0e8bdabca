package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	config "github.com/phillip/giftfund-go/config"
	middleware "github.com/phillip/giftfund-go/middleware"
	models "github.com/phillip/giftfund-go/models"
	notify "github.com/phillip/giftfund-go/notify"
	utils "github.com/phillip/giftfund-go/utils"
)

// ---------------- INVITE ----------------
// The batch is all-or-nothing: every entry is validated (and de-duplicated
// against the existing list) before anything is pushed, and the push itself
// is a single document update.
func InviteUsers(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}

		var input struct {
			Invites []models.InviteInput `json:"invites" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
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
			fail(c, http.StatusForbidden, "only the event creator can invite people")
			return
		}

		// Normalize phone numbers first so dedupe treats 07... and 2547...
		// as the same contact.
		for i := range input.Invites {
			if input.Invites[i].PhoneNumber != "" && utils.ValidPhoneNumber(input.Invites[i].PhoneNumber) {
				input.Invites[i].PhoneNumber = utils.NormalizePhoneNumber(input.Invites[i].PhoneNumber)
			}
		}

		if errs := models.ValidateInviteBatch(event.InvitedUsers, input.Invites); len(errs) > 0 {
			failWithReasons(c, http.StatusBadRequest, "invitation batch rejected", errs)
			return
		}

		now := time.Now()
		invitations := models.BuildInvitations(input.Invites, now)

		_, err = col.UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{
			"$push": bson.M{"invited_users": bson.M{"$each": invitations}},
			"$set":  bson.M{"updated_at": now},
		})
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not save invitations")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":     fmt.Sprintf("%d invitation(s) sent", len(invitations)),
			"invitations": invitations,
		})
	}
}

// ---------------- RESPOND ----------------
// The responder is matched by the email or phone number on their own token;
// no match is a 404, never a silent no-op.
func RespondToInvitation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid event id")
			return
		}

		var input struct {
			Response models.InvitationStatus `json:"response" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if input.Response != models.InvitationAccepted && input.Response != models.InvitationDeclined {
			fail(c, http.StatusBadRequest, "response must be accepted or declined")
			return
		}

		email := c.GetString("email")
		phone := c.GetString("phone_number")
		if phone != "" && utils.ValidPhoneNumber(phone) {
			phone = utils.NormalizePhoneNumber(phone)
		}
		if email == "" && phone == "" {
			fail(c, http.StatusBadRequest, "your account has no email or phone number to match an invitation")
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

		// Match the entry inside the update itself rather than by a
		// previously read index, so a concurrent change to the list cannot
		// redirect the write to the wrong invitation.
		var ors []bson.M
		if email != "" {
			ors = append(ors, bson.M{"inv.email": primitive.Regex{
				Pattern: "^" + regexp.QuoteMeta(email) + "$",
				Options: "i",
			}})
		}
		if phone != "" {
			ors = append(ors, bson.M{"inv.phone_number": phone})
		}

		now := time.Now()
		res, err := col.UpdateOne(ctx, bson.M{"_id": eventID},
			bson.M{"$set": bson.M{
				"invited_users.$[inv].status":       input.Response,
				"invited_users.$[inv].responded_at": now,
			}},
			options.Update().SetArrayFilters(options.ArrayFilters{
				Filters: []interface{}{bson.M{"$or": ors}},
			}))
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not record your response")
			return
		}
		if res.ModifiedCount == 0 {
			fail(c, http.StatusNotFound, "no invitation found for your email or phone number")
			return
		}

		if _, err := col.UpdateOne(ctx, bson.M{"_id": eventID},
			bson.M{"$set": bson.M{"updated_at": now}}); err != nil {
			log.Printf("could not bump updated_at on event %s: %v", eventID.Hex(), err)
		}

		notify.Dispatch(cfg.Notifier, event.CreatorID, notify.TypeInvitationResponse, map[string]interface{}{
			"event_id": eventID.Hex(),
			"response": input.Response,
			"email":    email,
		})

		c.JSON(http.StatusOK, gin.H{"message": "invitation " + string(input.Response)})
	}
}
