package database

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/waypool/waypool-backend/internal/models"
)

// StartExpirySweep periodically removes rides past their departure time
// and conversations past their expiresAt, standing in for a store-level
// TTL. Refs mirrored on surviving rides may briefly dangle; every write
// path re-checks existence and clears them.
func StartExpirySweep(db *gorm.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			sweepOnce(db, time.Now())
		}
	}()
}

func sweepOnce(db *gorm.DB, now time.Time) {
	var rideIDs []uint
	if err := db.Model(&models.RideRequest{}).
		Where("departure_time < ?", now).Pluck("id", &rideIDs).Error; err != nil {
		log.Printf("expiry sweep: list rides: %v", err)
		return
	}
	if len(rideIDs) > 0 {
		if err := db.Where("ride_id IN ?", rideIDs).Delete(&models.ConversationRef{}).Error; err != nil {
			log.Printf("expiry sweep: delete refs: %v", err)
		}
		if err := db.Delete(&models.RideRequest{}, rideIDs).Error; err != nil {
			log.Printf("expiry sweep: delete rides: %v", err)
		}
		log.Printf("expiry sweep: removed %d departed rides", len(rideIDs))
	}

	var convIDs []uint
	if err := db.Model(&models.Conversation{}).
		Where("expires_at < ?", now).Pluck("id", &convIDs).Error; err != nil {
		log.Printf("expiry sweep: list conversations: %v", err)
		return
	}
	if len(convIDs) > 0 {
		if err := db.Where("conversation_id IN ?", convIDs).Delete(&models.Message{}).Error; err != nil {
			log.Printf("expiry sweep: delete messages: %v", err)
		}
		if err := db.Where("conversation_id IN ?", convIDs).Delete(&models.ConversationRef{}).Error; err != nil {
			log.Printf("expiry sweep: delete refs: %v", err)
		}
		if err := db.Delete(&models.Conversation{}, convIDs).Error; err != nil {
			log.Printf("expiry sweep: delete conversations: %v", err)
		}
		log.Printf("expiry sweep: removed %d expired conversations", len(convIDs))
	}
}
