package models

import (
	"fmt"
	"strings"
	"time"

	utils "github.com/phillip/giftfund-go/utils"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation is embedded in Event.InvitedUsers.
type Invitation struct {
	Name        string           `bson:"name,omitempty" json:"name,omitempty"`
	Email       string           `bson:"email,omitempty" json:"email,omitempty"`
	PhoneNumber string           `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	Status      InvitationStatus `bson:"status" json:"status"`
	InvitedAt   time.Time        `bson:"invited_at" json:"invited_at"`
	RespondedAt *time.Time       `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
}

// Matches reports whether this invitation belongs to a responder identified by
// the given email or phone number.
func (i *Invitation) Matches(email, phone string) bool {
	if email != "" && i.Email != "" && strings.EqualFold(i.Email, email) {
		return true
	}
	if phone != "" && i.PhoneNumber != "" && i.PhoneNumber == phone {
		return true
	}
	return false
}

// InviteInput is one entry of an invite batch as sent by the client.
type InviteInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// ValidateInviteBatch checks a whole batch against format rules and the
// event's existing invitations. The batch is all-or-nothing: any returned
// error string means nothing should be persisted. Duplicates inside the batch
// itself are rejected too.
func ValidateInviteBatch(existing []Invitation, batch []InviteInput) []string {
	var errs []string
	if len(batch) == 0 {
		return []string{"at least one invite is required"}
	}

	seenEmail := map[string]bool{}
	seenPhone := map[string]bool{}
	for _, inv := range existing {
		if inv.Email != "" {
			seenEmail[strings.ToLower(inv.Email)] = true
		}
		if inv.PhoneNumber != "" {
			seenPhone[inv.PhoneNumber] = true
		}
	}

	for idx, in := range batch {
		if in.Email == "" && in.PhoneNumber == "" {
			errs = append(errs, fmt.Sprintf("invite %d: email or phone number is required", idx+1))
			continue
		}
		if in.Email != "" && !utils.ValidEmail(in.Email) {
			errs = append(errs, fmt.Sprintf("invite %d: invalid email %q", idx+1, in.Email))
		}
		if in.PhoneNumber != "" && !utils.ValidPhoneNumber(in.PhoneNumber) {
			errs = append(errs, fmt.Sprintf("invite %d: invalid phone number %q", idx+1, in.PhoneNumber))
		}
		if in.Email != "" {
			key := strings.ToLower(in.Email)
			if seenEmail[key] {
				errs = append(errs, fmt.Sprintf("invite %d: %s is already invited", idx+1, in.Email))
			}
			seenEmail[key] = true
		}
		if in.PhoneNumber != "" {
			if seenPhone[in.PhoneNumber] {
				errs = append(errs, fmt.Sprintf("invite %d: %s is already invited", idx+1, in.PhoneNumber))
			}
			seenPhone[in.PhoneNumber] = true
		}
	}
	return errs
}

// BuildInvitations converts a validated batch into embeddable entries.
func BuildInvitations(batch []InviteInput, now time.Time) []Invitation {
	out := make([]Invitation, 0, len(batch))
	for _, in := range batch {
		out = append(out, Invitation{
			Name:        in.Name,
			Email:       in.Email,
			PhoneNumber: in.PhoneNumber,
			Status:      InvitationPending,
			InvitedAt:   now,
		})
	}
	return out
}
