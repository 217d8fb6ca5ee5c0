// Package queue defines the notification messages exchanged over RabbitMQ
// and the consumer that turns them into notification records.
package queue

import (
	"time"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

// QueueName is the durable queue every meeting notification goes through.
const QueueName = "meeting.notifications"

// Event types, carried in the AMQP Type property.
const (
	EventSlotCancelled = "meeting.slot.cancelled"
	EventSignupCreated = "meeting.signup.created"
)

// SlotInfo is the part of a meeting slot a notification needs.
type SlotInfo struct {
	ID        uint64     `json:"id"`
	OwnerID   uint64     `json:"ownerId"`
	Location  string     `json:"location"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// Recipient is a person who held a seat.
type Recipient struct {
	SignupID uint64 `json:"signupId"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// SlotCancelledEvent is published once when an owner deletes a slot. It
// lists everyone who had signed up.
type SlotCancelledEvent struct {
	Slot        SlotInfo    `json:"slot"`
	Signups     []Recipient `json:"signups"`
	CancelledAt time.Time   `json:"cancelledAt"`
}

// SignupCreatedEvent is published after a successful signup.
type SignupCreatedEvent struct {
	Slot      SlotInfo  `json:"slot"`
	Signup    Recipient `json:"signup"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSlotInfo copies the notification fields of s.
func NewSlotInfo(s model.MeetingSlot) SlotInfo {
	return SlotInfo{ID: s.ID, OwnerID: s.OwnerID, Location: s.Location, StartTime: s.StartTime, EndTime: s.EndTime}
}

// NewRecipient copies the notification fields of g.
func NewRecipient(g model.Signup) Recipient {
	return Recipient{SignupID: g.ID, FullName: g.FullName, Email: g.Email}
}

// NewSlotCancelledEvent builds the cancellation for a deleted slot.
func NewSlotCancelledEvent(s model.MeetingSlot, at time.Time) SlotCancelledEvent {
	ev := SlotCancelledEvent{Slot: NewSlotInfo(s), Signups: make([]Recipient, 0, len(s.Signups)), CancelledAt: at.UTC()}
	for _, g := range s.Signups {
		ev.Signups = append(ev.Signups, NewRecipient(g))
	}
	return ev
}
