package core

import (
	"context"
	"time"

	"github.com/waypool/waypool-backend/internal/models"
)

// Store is the persistence surface the matching core runs against. The
// gorm/postgres implementation lives in internal/store; tests use an
// in-memory double.
type Store interface {
	// RideByID returns the ride with refs preloaded, or nil when absent.
	RideByID(ctx context.Context, id uint) (*models.RideRequest, error)
	// RideByOwner returns the owner's active ride with refs preloaded,
	// or nil when the owner has none.
	RideByOwner(ctx context.Context, ownerID uint) (*models.RideRequest, error)
	// CandidateRides returns rides to the destination departing inside
	// [from, to] whose status is available or pending.
	CandidateRides(ctx context.Context, dest models.Destination, from, to time.Time) ([]models.RideRequest, error)
	// ConversationByID returns the conversation with messages preloaded
	// in send order, or nil when absent.
	ConversationByID(ctx context.Context, id uint) (*models.Conversation, error)
	// Update runs fn inside one serializable transaction. Contention
	// aborts are retried a bounded number of times; when retries are
	// exhausted the error has kind transient. fn may run more than once
	// and must not keep state across attempts.
	Update(ctx context.Context, fn func(Tx) error) error
}

// Tx is the transactional view handed to Store.Update callbacks. Row
// locks on rides are always taken in ascending id order so symmetric
// concurrent operations on the same pair cannot deadlock.
type Tx interface {
	// LockRides locks the given rides for update, ascending by id, and
	// returns the locked rows keyed by id with refs preloaded. Ids that
	// no longer exist are simply absent from the result.
	LockRides(ids ...uint) (map[uint]*models.RideRequest, error)
	RideByOwner(ownerID uint) (*models.RideRequest, error)
	ConversationByID(id uint) (*models.Conversation, error)

	CreateRide(ride *models.RideRequest) error
	SetRideStatus(rideID uint, status models.RideStatus) error
	DeleteRide(rideID uint) error

	CreateConversation(conv *models.Conversation) error
	CreateRef(ref *models.ConversationRef) error
	SaveRef(ref *models.ConversationRef) error
	DeleteRef(refID uint) error

	AppendMessage(msg *models.Message) error
	// TrimMessages drops the oldest messages so at most keep remain.
	TrimMessages(conversationID uint, keep int) error
	MessageCount(conversationID uint) (int64, error)
}

// Quota tracks per-owner daily ride creation allowances.
type Quota interface {
	// TakeRideSlot consumes one slot for today and reports whether the
	// owner was still under the limit.
	TakeRideSlot(ctx context.Context, ownerID uint) (bool, error)
}
