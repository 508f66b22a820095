package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/waypool/waypool-backend/internal/core"
)

// Bus implements core.Notifier: committed events fan out to the local
// websocket hub and onto the conversation's redis channel for other
// instances. Fire-and-forget; a failed publish is logged and dropped.
type Bus struct {
	hub      *Hub
	useRedis bool
}

func NewBus(hub *Hub, useRedis bool) *Bus {
	return &Bus{hub: hub, useRedis: useRedis}
}

func (b *Bus) Publish(ev core.Event) {
	data, err := json.Marshal(WebSocketMessage{Type: string(ev.Kind), Data: ev})
	if err != nil {
		log.Printf("bus: marshal event for conversation %d: %v", ev.ConversationID, err)
		return
	}
	b.hub.BroadcastToConversation(ev.ConversationID, data)
	if b.useRedis && RedisClient != nil {
		if err := PublishConversationEvent(context.Background(), ev.ConversationID, data); err != nil {
			log.Printf("bus: redis publish for conversation %d: %v", ev.ConversationID, err)
		}
	}
}
