package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// instanceID distinguishes this process on the shared pub/sub channels
// so the relay does not re-deliver its own messages.
var instanceID string

// InitRedis initializes the Redis client
func InitRedis() error {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://redis:6379" // Default Redis address for Docker
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	RedisClient = redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	instanceID = hex.EncodeToString(raw)

	return nil
}

// relayEnvelope wraps a conversation event for cross-instance delivery.
type relayEnvelope struct {
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

func conversationChannel(conversationID uint) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

// PublishConversationEvent pushes an already-serialized event onto the
// conversation's channel so other instances can fan it out too.
func PublishConversationEvent(ctx context.Context, conversationID uint, payload []byte) error {
	data, err := json.Marshal(relayEnvelope{Source: instanceID, Payload: payload})
	if err != nil {
		return err
	}
	return RedisClient.Publish(ctx, conversationChannel(conversationID), data).Err()
}

// StartConversationRelay subscribes to every conversation channel and
// re-injects events published by other instances into the local hub.
func StartConversationRelay(ctx context.Context, hub *Hub) {
	pubsub := RedisClient.PSubscribe(ctx, "conversation:*")
	go func() {
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			idPart := strings.TrimPrefix(msg.Channel, "conversation:")
			conversationID, err := strconv.ParseUint(idPart, 10, 32)
			if err != nil {
				continue
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("relay: bad envelope on %s: %v", msg.Channel, err)
				continue
			}
			if env.Source == instanceID {
				continue
			}
			hub.BroadcastToConversation(uint(conversationID), env.Payload)
		}
	}()
}

// RideQuota tracks per-owner daily ride creations in redis.
type RideQuota struct {
	Limit int
}

func NewRideQuota(limit int) *RideQuota {
	return &RideQuota{Limit: limit}
}

// TakeRideSlot consumes one creation slot for today and reports whether
// the owner stayed within the limit.
func (q *RideQuota) TakeRideSlot(ctx context.Context, ownerID uint) (bool, error) {
	if q.Limit <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("quota:rides:%d:%s", ownerID, time.Now().Format("20060102"))
	count, err := RedisClient.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		RedisClient.Expire(ctx, key, 24*time.Hour)
	}
	return count <= int64(q.Limit), nil
}
