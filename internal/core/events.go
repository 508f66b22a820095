package core

import "github.com/waypool/waypool-backend/internal/models"

type EventKind string

const (
	EventMessageAppended EventKind = "message_appended"
	EventStatusChanged   EventKind = "status_changed"
)

// StatusChange carries both rides' new statuses and both refs' new
// statuses after a committed transition on a conversation.
type StatusChange struct {
	RideAID     uint              `json:"rideAId"`
	RideBID     uint              `json:"rideBId"`
	RideAStatus models.RideStatus `json:"rideAStatus"`
	RideBStatus models.RideStatus `json:"rideBStatus"`
	RefStatusA  models.RefStatus  `json:"refStatusA"`
	RefStatusB  models.RefStatus  `json:"refStatusB"`
}

// Event is a post-commit notification about one conversation. Exactly
// one of Message and Status is set, matching Kind.
type Event struct {
	ConversationID uint            `json:"conversationId"`
	Kind           EventKind       `json:"kind"`
	Message        *models.Message `json:"newMessage,omitempty"`
	Status         *StatusChange   `json:"status,omitempty"`
}

// Notifier fans committed events out to conversation subscribers.
// Delivery is best-effort: no retry, no durability, and never inside
// the transaction that produced the event.
type Notifier interface {
	Publish(ev Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
