package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/waypool/waypool-backend/internal/core"
	"github.com/waypool/waypool-backend/internal/models"
)

// maxTxAttempts bounds internal retries on contention aborts before the
// failure surfaces to the caller as transient.
const maxTxAttempts = 3

// GormStore implements core.Store on postgres via gorm. All mutating
// operations run under serializable isolation; ride rows are locked
// FOR UPDATE in ascending id order.
type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) RideByID(ctx context.Context, id uint) (*models.RideRequest, error) {
	return rideQuery(s.db.WithContext(ctx).Preload("Owner"), "id = ?", id)
}

func (s *GormStore) RideByOwner(ctx context.Context, ownerID uint) (*models.RideRequest, error) {
	return rideQuery(s.db.WithContext(ctx), "owner_id = ?", ownerID)
}

func rideQuery(db *gorm.DB, cond string, arg interface{}) (*models.RideRequest, error) {
	var ride models.RideRequest
	err := db.Preload("Refs", refOrder).Where(cond, arg).First(&ride).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

func refOrder(db *gorm.DB) *gorm.DB {
	return db.Order("conversation_refs.id ASC")
}

func messageOrder(db *gorm.DB) *gorm.DB {
	return db.Order("messages.created_at ASC, messages.id ASC")
}

func (s *GormStore) CandidateRides(ctx context.Context, dest models.Destination, from, to time.Time) ([]models.RideRequest, error) {
	var rides []models.RideRequest
	err := s.db.WithContext(ctx).
		Preload("Refs", refOrder).
		Preload("Owner").
		Where("destination = ? AND departure_time BETWEEN ? AND ? AND status IN ?",
			dest, from, to, []models.RideStatus{models.RideStatusAvailable, models.RideStatusPending}).
		Order("departure_time ASC").
		Find(&rides).Error
	if err != nil {
		return nil, err
	}
	return rides, nil
}

func (s *GormStore) ConversationByID(ctx context.Context, id uint) (*models.Conversation, error) {
	return conversationQuery(s.db.WithContext(ctx), id)
}

func conversationQuery(db *gorm.DB, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.Preload("Messages", messageOrder).First(&conv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Update runs fn in a serializable transaction, retrying serialization
// and deadlock aborts with a short backoff before giving up.
func (s *GormStore) Update(ctx context.Context, fn func(core.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			log.Printf("store: retrying aborted transaction (attempt %d)", attempt+1)
			time.Sleep(time.Duration(attempt) * 25 * time.Millisecond)
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&gormTx{db: tx})
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err == nil || !retryable(err) {
			return err
		}
	}
	return core.TransientErr("transaction aborted by concurrent update, try again")
}

// retryable reports whether the error is a pure contention abort:
// serialization_failure (40001) or deadlock_detected (40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockRides(ids ...uint) (map[uint]*models.RideRequest, error) {
	sorted := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rides := make(map[uint]*models.RideRequest, len(sorted))
	for _, id := range sorted {
		var ride models.RideRequest
		err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ride, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := t.db.Where("ride_id = ?", id).Order("id ASC").Find(&ride.Refs).Error; err != nil {
			return nil, err
		}
		rides[id] = &ride
	}
	return rides, nil
}

func (t *gormTx) RideByOwner(ownerID uint) (*models.RideRequest, error) {
	return rideQuery(t.db, "owner_id = ?", ownerID)
}

func (t *gormTx) ConversationByID(id uint) (*models.Conversation, error) {
	return conversationQuery(t.db, id)
}

func (t *gormTx) CreateRide(ride *models.RideRequest) error {
	return t.db.Create(ride).Error
}

func (t *gormTx) SetRideStatus(rideID uint, status models.RideStatus) error {
	return t.db.Model(&models.RideRequest{}).Where("id = ?", rideID).
		Update("status", status).Error
}

func (t *gormTx) DeleteRide(rideID uint) error {
	return t.db.Delete(&models.RideRequest{}, rideID).Error
}

func (t *gormTx) CreateConversation(conv *models.Conversation) error {
	return t.db.Create(conv).Error
}

func (t *gormTx) CreateRef(ref *models.ConversationRef) error {
	return t.db.Create(ref).Error
}

func (t *gormTx) SaveRef(ref *models.ConversationRef) error {
	return t.db.Model(&models.ConversationRef{}).Where("id = ?", ref.ID).
		Update("status", ref.Status).Error
}

func (t *gormTx) DeleteRef(refID uint) error {
	return t.db.Delete(&models.ConversationRef{}, refID).Error
}

func (t *gormTx) AppendMessage(msg *models.Message) error {
	return t.db.Create(msg).Error
}

func (t *gormTx) TrimMessages(conversationID uint, keep int) error {
	newest := t.db.Model(&models.Message{}).Select("id").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").Limit(keep)
	return t.db.Where("conversation_id = ? AND id NOT IN (?)", conversationID, newest).
		Delete(&models.Message{}).Error
}

func (t *gormTx) MessageCount(conversationID uint) (int64, error) {
	var count int64
	err := t.db.Model(&models.Message{}).Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}
