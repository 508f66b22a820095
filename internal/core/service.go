package core

import (
	"time"

	"github.com/waypool/waypool-backend/internal/config"
	"github.com/waypool/waypool-backend/internal/models"
)

// Service implements the matching-and-confirmation core: ride lifecycle,
// match search, the two-phase confirmation protocol, conversation
// messaging, and post-commit event fan-out.
type Service struct {
	store    Store
	cfg      config.Settings
	notifier Notifier
	quota    Quota
	now      func() time.Time
}

func NewService(store Store, cfg config.Settings, notifier Notifier, quota Quota) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		quota:    quota,
		now:      time.Now,
	}
}

// publish fans events out after the owning transaction has committed.
// Failures here never affect the mutating call's result.
func (s *Service) publish(events []Event) {
	for _, ev := range events {
		s.notifier.Publish(ev)
	}
}

// statusEvent snapshots the pair's current state into a status_changed
// event. Ride order in the payload follows the conversation's A/B order.
func statusEvent(conv *models.Conversation, rides map[uint]*models.RideRequest) Event {
	change := &StatusChange{RideAID: conv.RideAID, RideBID: conv.RideBID}
	if a := rides[conv.RideAID]; a != nil {
		change.RideAStatus = a.Status
		if ref := a.RefFor(conv.ID); ref != nil {
			change.RefStatusA = ref.Status
		}
	}
	if b := rides[conv.RideBID]; b != nil {
		change.RideBStatus = b.Status
		if ref := b.RefFor(conv.ID); ref != nil {
			change.RefStatusB = ref.Status
		}
	}
	return Event{ConversationID: conv.ID, Kind: EventStatusChanged, Status: change}
}

// setPair moves both mirrored refs of a conversation to status in lock
// step. Both rides must already be locked by the caller. Rides that
// vanished under external expiry are tolerated: the surviving side is
// still updated.
func setPair(tx Tx, conversationID uint, status models.RefStatus, rides ...*models.RideRequest) error {
	for _, ride := range rides {
		if ride == nil {
			continue
		}
		ref := ride.RefFor(conversationID)
		if ref == nil {
			continue
		}
		if ref.Status == status {
			continue
		}
		ref.Status = status
		if err := tx.SaveRef(ref); err != nil {
			return err
		}
	}
	return nil
}

// syncRideStatus recomputes a ride's status from its refs and persists
// it when it changed.
func syncRideStatus(tx Tx, ride *models.RideRequest) error {
	next := ride.ComputeStatus()
	if next == ride.Status {
		return nil
	}
	ride.Status = next
	return tx.SetRideStatus(ride.ID, next)
}
