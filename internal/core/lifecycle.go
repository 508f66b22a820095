package core

import (
	"context"
	"time"

	"github.com/waypool/waypool-backend/internal/models"
)

// CreateRide opens a new ride request for the owner. Departure times
// must land on a slot boundary, lie in the future, and stay within the
// advance window. An owner holds at most one active ride and at most
// DailyRideQuota creations per day.
func (s *Service) CreateRide(ctx context.Context, ownerID uint, dest models.Destination, departure time.Time) (*models.RideRequest, error) {
	if !dest.Valid() {
		return nil, validationErr("invalid_input", "unknown destination %q", dest)
	}
	if err := s.validateSlot(departure); err != nil {
		return nil, err
	}

	// Fast duplicate check before spending a quota slot. The
	// authoritative check happens again inside the transaction.
	if existing, err := s.store.RideByOwner(ctx, ownerID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, conflictErr("already_active", "you already have an active ride request")
	}

	ok, err := s.quota.TakeRideSlot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictErr("quota_exceeded", "daily ride request limit reached")
	}

	ride := &models.RideRequest{
		OwnerID:       ownerID,
		Destination:   dest,
		DepartureTime: departure,
		Status:        models.RideStatusAvailable,
	}
	err = s.store.Update(ctx, func(tx Tx) error {
		existing, err := tx.RideByOwner(ownerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflictErr("already_active", "you already have an active ride request")
		}
		return tx.CreateRide(ride)
	})
	if err != nil {
		return nil, err
	}
	return ride, nil
}

func (s *Service) validateSlot(departure time.Time) error {
	now := s.now()
	if !departure.After(now) {
		return validationErr("invalid_input", "departure time must be in the future")
	}
	if departure.After(now.Add(s.cfg.MaxAdvance)) {
		return validationErr("invalid_input", "departure time is too far in the future")
	}
	if s.cfg.SlotGranularity > 0 && !departure.Truncate(s.cfg.SlotGranularity).Equal(departure) {
		return validationErr("invalid_input", "departure time must align to %s slots", s.cfg.SlotGranularity)
	}
	return nil
}

// CurrentRide returns the owner's active ride, or nil when none exists.
func (s *Service) CurrentRide(ctx context.Context, ownerID uint) (*models.RideRequest, error) {
	return s.store.RideByOwner(ctx, ownerID)
}

// DeleteRide removes the owner's ride. Every non-declined pairing the
// ride holds is cascade-declined inside the same transaction before the
// row itself goes away, so mirror symmetry holds at every instant a
// concurrent reader could observe.
func (s *Service) DeleteRide(ctx context.Context, ownerID uint) error {
	var events []Event
	err := s.store.Update(ctx, func(tx Tx) error {
		events = nil

		ride, err := tx.RideByOwner(ownerID)
		if err != nil {
			return err
		}
		if ride == nil {
			return notFoundErr("not_found", "no active ride request")
		}

		lockIDs := []uint{ride.ID}
		for i := range ride.Refs {
			if ride.Refs[i].Status != models.RefStatusDeclined {
				lockIDs = append(lockIDs, ride.Refs[i].CounterpartRideID)
			}
		}
		rides, err := tx.LockRides(lockIDs...)
		if err != nil {
			return err
		}
		ride = rides[ride.ID]
		if ride == nil {
			return notFoundErr("not_found", "no active ride request")
		}

		for i := range ride.Refs {
			ref := &ride.Refs[i]
			if ref.Status == models.RefStatusDeclined {
				continue
			}
			counterpart := rides[ref.CounterpartRideID]
			if counterpart == nil {
				// Counterpart expired under us; nothing left to mirror.
				continue
			}
			if err := setPair(tx, ref.ConversationID, models.RefStatusDeclined, ride, counterpart); err != nil {
				return err
			}
			if err := syncRideStatus(tx, counterpart); err != nil {
				return err
			}
			conv, err := tx.ConversationByID(ref.ConversationID)
			if err != nil {
				return err
			}
			if conv != nil {
				ride.Status = ride.ComputeStatus()
				events = append(events, statusEvent(conv, rides))
			}
		}

		for i := range ride.Refs {
			if err := tx.DeleteRef(ride.Refs[i].ID); err != nil {
				return err
			}
		}
		return tx.DeleteRide(ride.ID)
	})
	if err != nil {
		return err
	}
	s.publish(events)
	return nil
}
