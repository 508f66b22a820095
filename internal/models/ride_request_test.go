package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rideWithRefs(statuses ...RefStatus) *RideRequest {
	ride := &RideRequest{}
	ride.ID = 1
	for i, status := range statuses {
		ref := ConversationRef{
			RideID:            ride.ID,
			CounterpartRideID: uint(100 + i),
			ConversationID:    uint(200 + i),
			Status:            status,
		}
		ref.ID = uint(10 + i)
		ride.Refs = append(ride.Refs, ref)
	}
	return ride
}

func TestComputeStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []RefStatus
		want     RideStatus
	}{
		{"no refs", nil, RideStatusAvailable},
		{"all declined", []RefStatus{RefStatusDeclined, RefStatusDeclined}, RideStatusAvailable},
		{"one pending", []RefStatus{RefStatusPending}, RideStatusPending},
		{"awaiting counts as active", []RefStatus{RefStatusDeclined, RefStatusAwaiting}, RideStatusPending},
		{"one confirmed", []RefStatus{RefStatusConfirmed, RefStatusDeclined}, RideStatusConfirmed},
		{"confirmed wins over active", []RefStatus{RefStatusConfirmed, RefStatusPending}, RideStatusConfirmed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rideWithRefs(tc.statuses...).ComputeStatus())
		})
	}
}

func TestRefStatusPredicates(t *testing.T) {
	assert.True(t, RefStatusPending.Active())
	assert.True(t, RefStatusAwaiting.Active())
	assert.False(t, RefStatusConfirmed.Active())
	assert.False(t, RefStatusDeclined.Active())

	assert.True(t, RefStatusConfirmed.Terminal())
	assert.True(t, RefStatusDeclined.Terminal())
	assert.False(t, RefStatusPending.Terminal())
}

func TestActiveRefWithIgnoresDeclined(t *testing.T) {
	ride := rideWithRefs(RefStatusDeclined, RefStatusPending)
	assert.Nil(t, ride.ActiveRefWith(100))
	assert.NotNil(t, ride.ActiveRefWith(101))
}

func TestDestinationValid(t *testing.T) {
	assert.True(t, DestinationAirport.Valid())
	assert.False(t, Destination("moon").Valid())
}
