package models

import (
	"time"

	"gorm.io/gorm"
)

type RideStatus string

const (
	RideStatusAvailable RideStatus = "available"
	RideStatusPending   RideStatus = "pending"
	RideStatusConfirmed RideStatus = "confirmed"
)

type Destination string

const (
	DestinationAirport      Destination = "airport"
	DestinationTrainStation Destination = "train_station"
	DestinationUniversity   Destination = "university"
	DestinationMall         Destination = "mall"
	DestinationStadium      Destination = "stadium"
)

// Destinations lists every valid destination, in display order.
var Destinations = []Destination{
	DestinationAirport,
	DestinationTrainStation,
	DestinationUniversity,
	DestinationMall,
	DestinationStadium,
}

func (d Destination) Valid() bool {
	for _, dest := range Destinations {
		if d == dest {
			return true
		}
	}
	return false
}

// RideRequest is a user's open intent to share transport to a destination
// at a departure time. At most one active ride exists per owner.
type RideRequest struct {
	gorm.Model
	OwnerID       uint              `json:"ownerId" gorm:"not null;index"`
	Owner         *User             `json:"owner,omitempty"`
	Destination   Destination       `json:"destination" gorm:"not null"`
	DepartureTime time.Time         `json:"departureTime" gorm:"not null;index"`
	Status        RideStatus        `json:"status" gorm:"not null;default:'available'"`
	Refs          []ConversationRef `json:"refs" gorm:"foreignKey:RideID"`
}

// RefFor returns the ride's ref pointing at the given conversation, or nil.
func (r *RideRequest) RefFor(conversationID uint) *ConversationRef {
	for i := range r.Refs {
		if r.Refs[i].ConversationID == conversationID {
			return &r.Refs[i]
		}
	}
	return nil
}

// ActiveRefWith returns the ride's non-declined ref toward the given
// counterpart ride, or nil.
func (r *RideRequest) ActiveRefWith(counterpartRideID uint) *ConversationRef {
	for i := range r.Refs {
		ref := &r.Refs[i]
		if ref.CounterpartRideID == counterpartRideID && ref.Status != RefStatusDeclined {
			return ref
		}
	}
	return nil
}

// ActiveRefCount counts refs still in pending or awaiting_confirmation.
func (r *RideRequest) ActiveRefCount() int {
	n := 0
	for i := range r.Refs {
		if r.Refs[i].Status.Active() {
			n++
		}
	}
	return n
}

// ComputeStatus derives the ride status from its refs: confirmed when
// exactly one ref is confirmed, pending when at least one ref is still
// active, available otherwise.
func (r *RideRequest) ComputeStatus() RideStatus {
	confirmed := 0
	active := 0
	for i := range r.Refs {
		switch {
		case r.Refs[i].Status == RefStatusConfirmed:
			confirmed++
		case r.Refs[i].Status.Active():
			active++
		}
	}
	if confirmed == 1 {
		return RideStatusConfirmed
	}
	if active > 0 {
		return RideStatusPending
	}
	return RideStatusAvailable
}
