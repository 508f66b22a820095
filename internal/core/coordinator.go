package core

import (
	"context"
	"time"

	"github.com/waypool/waypool-backend/internal/models"
)

// StatusResult reports the pair's state after a confirm or decline.
type StatusResult struct {
	ConversationID  uint              `json:"conversationId"`
	Message         string            `json:"message"`
	MyRefStatus     models.RefStatus  `json:"myStatus"`
	OtherRefStatus  models.RefStatus  `json:"otherPartyStatus"`
	MyRideStatus    models.RideStatus `json:"myRideStatus"`
	OtherRideStatus models.RideStatus `json:"otherRideStatus"`
}

// InitiateConversation pairs the actor's ride with the target ride:
// one new conversation plus mirrored pending refs on both rides, and
// both rides promoted from available to pending, all in one
// transaction. Neither ride may already be confirmed and the pair may
// hold at most one non-declined conversation.
func (s *Service) InitiateConversation(ctx context.Context, actorUserID, targetRideID uint) (*models.Conversation, error) {
	var (
		conv   *models.Conversation
		events []Event
	)
	err := s.store.Update(ctx, func(tx Tx) error {
		conv, events = nil, nil

		actor, err := tx.RideByOwner(actorUserID)
		if err != nil {
			return err
		}
		if actor == nil {
			return notFoundErr("not_found", "you have no active ride request")
		}
		if targetRideID == actor.ID {
			return validationErr("self_target", "cannot start a conversation with your own ride")
		}

		rides, err := tx.LockRides(actor.ID, targetRideID)
		if err != nil {
			return err
		}
		me, target := rides[actor.ID], rides[targetRideID]
		if me == nil {
			return notFoundErr("not_found", "you have no active ride request")
		}
		if target == nil {
			return notFoundErr("not_found", "target ride no longer exists")
		}
		if me.Status == models.RideStatusConfirmed || target.Status == models.RideStatusConfirmed {
			return conflictErr("already_confirmed", "one of the rides is already confirmed")
		}
		if me.ActiveRefWith(target.ID) != nil {
			return conflictErr("duplicate", "a conversation with this ride already exists")
		}
		if limit := s.cfg.MaxActivePairings; limit > 0 &&
			(me.ActiveRefCount() >= limit || target.ActiveRefCount() >= limit) {
			return conflictErr("pairing_limit", "too many simultaneous pairings")
		}

		expiresAt := earlier(me.DepartureTime, target.DepartureTime).Add(s.cfg.ExpiryBuffer)
		conv = &models.Conversation{RideAID: me.ID, RideBID: target.ID, ExpiresAt: expiresAt}
		if err := tx.CreateConversation(conv); err != nil {
			return err
		}

		for _, pair := range [][2]*models.RideRequest{{me, target}, {target, me}} {
			ref := models.ConversationRef{
				RideID:            pair[0].ID,
				CounterpartRideID: pair[1].ID,
				ConversationID:    conv.ID,
				Status:            models.RefStatusPending,
			}
			if err := tx.CreateRef(&ref); err != nil {
				return err
			}
			pair[0].Refs = append(pair[0].Refs, ref)
		}

		if err := syncRideStatus(tx, me); err != nil {
			return err
		}
		if err := syncRideStatus(tx, target); err != nil {
			return err
		}
		events = append(events, statusEvent(conv, rides))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(events)
	return conv, nil
}

// Confirm advances the actor's side of the two-phase handshake. The
// first confirmer moves to awaiting_confirmation; when the counterpart
// has already confirmed, both refs and both rides lock in as confirmed
// and every other still-active pairing on either ride is cascade-
// declined inside the same transaction.
func (s *Service) Confirm(ctx context.Context, actorUserID, conversationID uint) (*StatusResult, error) {
	var (
		result *StatusResult
		events []Event
		healed *Error
	)
	err := s.store.Update(ctx, func(tx Tx) error {
		result, events, healed = nil, nil, nil

		conv, me, other, err := s.locateParticipants(tx, actorUserID, conversationID, true)
		if err != nil {
			return err
		}
		rides := map[uint]*models.RideRequest{me.ID: me}
		if other != nil {
			rides[other.ID] = other
		}
		if other == nil {
			// Counterpart expired. Clear the dangling ref and commit
			// that cleanup; the caller still gets not-found.
			if ref := me.RefFor(conv.ID); ref != nil {
				if err := tx.DeleteRef(ref.ID); err != nil {
					return err
				}
				me.Refs = removeRef(me.Refs, ref.ID)
				if err := syncRideStatus(tx, me); err != nil {
					return err
				}
			}
			healed = notFoundErr("not_found", "counterpart ride no longer exists")
			return nil
		}

		myRef := me.RefFor(conv.ID)
		otherRef := other.RefFor(conv.ID)
		if myRef == nil || otherRef == nil {
			return notFoundErr("not_found", "pairing no longer exists")
		}

		switch myRef.Status {
		case models.RefStatusConfirmed:
			return conflictErr("already_confirmed", "you already confirmed this pairing")
		case models.RefStatusAwaiting:
			return conflictErr("already_confirmed", "you already confirmed, waiting for the other party")
		case models.RefStatusDeclined:
			return conflictErr("invalid_state", "this pairing was declined")
		}

		switch otherRef.Status {
		case models.RefStatusPending:
			// Phase 1: first confirmer waits for the counterpart.
			myRef.Status = models.RefStatusAwaiting
			if err := tx.SaveRef(myRef); err != nil {
				return err
			}
			result = pairResult(conv, me, other, "confirmation recorded, waiting for the other party")

		case models.RefStatusAwaiting:
			// Phase 2: mutual lock, then cascade.
			if err := setPair(tx, conv.ID, models.RefStatusConfirmed, me, other); err != nil {
				return err
			}
			if err := syncRideStatus(tx, me); err != nil {
				return err
			}
			if err := syncRideStatus(tx, other); err != nil {
				return err
			}
			lockSet, err := s.lockCascadeCounterparts(tx, rides, me, other, conv.ID)
			if err != nil {
				return err
			}
			if err := s.cascade(tx, lockSet, me, conv.ID, &events); err != nil {
				return err
			}
			if err := s.cascade(tx, lockSet, other, conv.ID, &events); err != nil {
				return err
			}
			result = pairResult(conv, me, other, "both parties confirmed, ride is locked in")

		default:
			return conflictErr("invalid_state", "this pairing can no longer be confirmed")
		}

		events = append([]Event{statusEvent(conv, rides)}, events...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if healed != nil {
		return nil, healed
	}
	s.publish(events)
	return result, nil
}

// Decline terminally declines the pairing for both sides. Declining an
// already-declined conversation is a no-op; declining is rejected once
// either ride is confirmed.
func (s *Service) Decline(ctx context.Context, actorUserID, conversationID uint) (*StatusResult, error) {
	var (
		result *StatusResult
		events []Event
	)
	err := s.store.Update(ctx, func(tx Tx) error {
		result, events = nil, nil

		conv, me, other, err := s.locateParticipants(tx, actorUserID, conversationID, false)
		if err != nil {
			return err
		}
		myRef := me.RefFor(conv.ID)
		if myRef == nil {
			return notFoundErr("not_found", "pairing no longer exists")
		}
		if me.Status == models.RideStatusConfirmed ||
			(other != nil && other.Status == models.RideStatusConfirmed) {
			return conflictErr("ride_already_confirmed", "a confirmed ride cannot decline; delete the ride instead")
		}

		var otherRef *models.ConversationRef
		if other != nil {
			otherRef = other.RefFor(conv.ID)
		}
		alreadyDeclined := myRef.Status == models.RefStatusDeclined &&
			(otherRef == nil || otherRef.Status == models.RefStatusDeclined)

		if !alreadyDeclined {
			if err := setPair(tx, conv.ID, models.RefStatusDeclined, me, other); err != nil {
				return err
			}
			if err := syncRideStatus(tx, me); err != nil {
				return err
			}
			if other != nil {
				if err := syncRideStatus(tx, other); err != nil {
					return err
				}
			}
			rides := map[uint]*models.RideRequest{me.ID: me}
			if other != nil {
				rides[other.ID] = other
			}
			events = append(events, statusEvent(conv, rides))
		}
		result = pairResult(conv, me, other, "pairing declined")
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(events)
	return result, nil
}

// locateParticipants resolves the conversation, checks the actor is one
// of its two rides, and returns both rides locked in ascending id
// order. When withCascade is set, every active ref's counterpart on
// either side is read first so the full lock set is taken in one
// ordered acquisition.
func (s *Service) locateParticipants(tx Tx, actorUserID, conversationID uint, withCascade bool) (*models.Conversation, *models.RideRequest, *models.RideRequest, error) {
	conv, err := tx.ConversationByID(conversationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if conv == nil {
		return nil, nil, nil, notFoundErr("not_found", "conversation not found")
	}
	actor, err := tx.RideByOwner(actorUserID)
	if err != nil {
		return nil, nil, nil, err
	}
	if actor == nil {
		return nil, nil, nil, notFoundErr("not_found", "you have no active ride request")
	}
	if !conv.HasRide(actor.ID) {
		return nil, nil, nil, unauthorizedErr("not_participant", "you are not part of this conversation")
	}
	otherID := conv.OtherRide(actor.ID)

	lockIDs := []uint{actor.ID, otherID}
	if withCascade {
		for i := range actor.Refs {
			if actor.Refs[i].Status.Active() {
				lockIDs = append(lockIDs, actor.Refs[i].CounterpartRideID)
			}
		}
	}
	rides, err := tx.LockRides(lockIDs...)
	if err != nil {
		return nil, nil, nil, err
	}
	me := rides[actor.ID]
	if me == nil {
		return nil, nil, nil, notFoundErr("not_found", "you have no active ride request")
	}
	return conv, me, rides[otherID], nil
}

// lockCascadeCounterparts extends the lock set with counterparts of the
// two freshly confirmed rides' remaining active refs. Locks are still
// taken ascending; under serializable isolation any interleaving that
// slipped in between reads aborts and the operation retries.
func (s *Service) lockCascadeCounterparts(tx Tx, locked map[uint]*models.RideRequest, me, other *models.RideRequest, exceptConvID uint) (map[uint]*models.RideRequest, error) {
	var missing []uint
	for _, ride := range []*models.RideRequest{me, other} {
		for i := range ride.Refs {
			ref := &ride.Refs[i]
			if ref.ConversationID == exceptConvID || !ref.Status.Active() {
				continue
			}
			if _, ok := locked[ref.CounterpartRideID]; !ok {
				missing = append(missing, ref.CounterpartRideID)
			}
		}
	}
	if len(missing) > 0 {
		extra, err := tx.LockRides(missing...)
		if err != nil {
			return nil, err
		}
		for id, ride := range extra {
			locked[id] = ride
		}
	}
	return locked, nil
}

// cascade declines every other still-active pairing of a freshly
// confirmed ride. The pass is bounded to the ride's own ref list; it
// never walks further than the direct counterparts. Counterpart rides
// left with no active ref demote to available.
func (s *Service) cascade(tx Tx, rides map[uint]*models.RideRequest, ride *models.RideRequest, exceptConvID uint, events *[]Event) error {
	for i := range ride.Refs {
		ref := &ride.Refs[i]
		if ref.ConversationID == exceptConvID || !ref.Status.Active() {
			continue
		}
		counterpart := rides[ref.CounterpartRideID]
		if counterpart == nil {
			// Counterpart expired; clear the dangling ref.
			if err := tx.DeleteRef(ref.ID); err != nil {
				return err
			}
			ref.Status = models.RefStatusDeclined
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
			*events = append(*events, statusEvent(conv, rides))
		}
	}
	return nil
}

func pairResult(conv *models.Conversation, me, other *models.RideRequest, message string) *StatusResult {
	result := &StatusResult{
		ConversationID: conv.ID,
		Message:        message,
		MyRideStatus:   me.Status,
	}
	if ref := me.RefFor(conv.ID); ref != nil {
		result.MyRefStatus = ref.Status
	}
	if other != nil {
		result.OtherRideStatus = other.Status
		if ref := other.RefFor(conv.ID); ref != nil {
			result.OtherRefStatus = ref.Status
		}
	}
	return result
}

func removeRef(refs []models.ConversationRef, refID uint) []models.ConversationRef {
	out := refs[:0]
	for i := range refs {
		if refs[i].ID != refID {
			out = append(out, refs[i])
		}
	}
	return out
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
