package models

import (
	"time"

	"gorm.io/gorm"
)

type RefStatus string

const (
	RefStatusPending   RefStatus = "pending"
	RefStatusAwaiting  RefStatus = "awaiting_confirmation"
	RefStatusConfirmed RefStatus = "confirmed"
	RefStatusDeclined  RefStatus = "declined"
)

// Active reports whether the ref can still move to another state.
func (s RefStatus) Active() bool {
	return s == RefStatusPending || s == RefStatusAwaiting
}

// Terminal reports whether the ref can never transition again.
func (s RefStatus) Terminal() bool {
	return s == RefStatusConfirmed || s == RefStatusDeclined
}

// ConversationRef is a ride's local pointer to a conversation plus that
// ride's view of its status. Every conversation has exactly two refs,
// one per participant ride, updated together in one transaction.
type ConversationRef struct {
	gorm.Model
	RideID            uint      `json:"rideId" gorm:"not null;index"`
	CounterpartRideID uint      `json:"counterpartRideId" gorm:"not null;index"`
	ConversationID    uint      `json:"conversationId" gorm:"not null;index"`
	Status            RefStatus `json:"status" gorm:"not null;default:'pending'"`
}

// Conversation is the paired negotiation context between exactly two
// ride requests. It is created by initiate and removed by expiry.
type Conversation struct {
	gorm.Model
	RideAID   uint      `json:"rideAId" gorm:"not null;index"`
	RideBID   uint      `json:"rideBId" gorm:"not null;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	Messages  []Message `json:"messages" gorm:"foreignKey:ConversationID"`
}

// HasRide reports whether the given ride is one of the two participants.
func (c *Conversation) HasRide(rideID uint) bool {
	return c.RideAID == rideID || c.RideBID == rideID
}

// OtherRide returns the counterpart ride id for a participant ride.
func (c *Conversation) OtherRide(rideID uint) uint {
	if c.RideAID == rideID {
		return c.RideBID
	}
	return c.RideAID
}

// Message is a single chat entry inside a conversation. The per-
// conversation list is capped; the oldest messages are trimmed first.
type Message struct {
	gorm.Model
	ConversationID uint   `json:"conversationId" gorm:"not null;index"`
	SenderID       uint   `json:"senderId" gorm:"not null"`
	Text           string `json:"text" gorm:"not null"`
}
