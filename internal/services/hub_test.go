package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypool/waypool-backend/internal/core"
	"github.com/waypool/waypool-backend/internal/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	return hub
}

func connect(t *testing.T, hub *Hub, userID uint, topics ...uint) *Client {
	t.Helper()
	topicSet := make(map[uint]bool, len(topics))
	for _, id := range topics {
		topicSet[id] = true
	}
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 8),
		Hub:    hub,
		topics: topicSet,
	}
	hub.register <- client
	require.Eventually(t, func() bool {
		hub.mutex.RLock()
		defer hub.mutex.RUnlock()
		return hub.clients[client]
	}, time.Second, time.Millisecond)
	return client
}

func TestHubDeliversToConversationSubscribers(t *testing.T) {
	hub := startHub(t)
	subscribed := connect(t, hub, 1, 42)
	other := connect(t, hub, 2, 7)

	hub.BroadcastToConversation(42, []byte("hello"))

	select {
	case msg := <-subscribed.Send:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the message")
	}
	assert.Empty(t, other.Send)
}

func TestHubUnregisterDropsSubscriptions(t *testing.T) {
	hub := startHub(t)
	client := connect(t, hub, 1, 42)
	assert.Equal(t, 1, hub.SubscriberCount(42))

	hub.unregister <- client
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(42) == 0
	}, time.Second, time.Millisecond)

	// Send channel is closed; broadcasting afterwards must not panic.
	hub.BroadcastToConversation(42, []byte("late"))
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)
	client := &Client{
		UserID: 1,
		Send:   make(chan []byte), // unbuffered, nobody reading
		Hub:    hub,
		topics: map[uint]bool{42: true},
	}
	hub.register <- client
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(42) == 1
	}, time.Second, time.Millisecond)

	hub.BroadcastToConversation(42, []byte("one"))
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(42) == 0
	}, time.Second, time.Millisecond)
}

func TestBusWrapsEventsForSubscribers(t *testing.T) {
	hub := startHub(t)
	client := connect(t, hub, 1, 9)
	bus := NewBus(hub, false)

	bus.Publish(core.Event{
		ConversationID: 9,
		Kind:           core.EventStatusChanged,
		Status: &core.StatusChange{
			RideAID:     3,
			RideBID:     4,
			RideAStatus: models.RideStatusConfirmed,
			RideBStatus: models.RideStatusConfirmed,
			RefStatusA:  models.RefStatusConfirmed,
			RefStatusB:  models.RefStatusConfirmed,
		},
	})

	select {
	case raw := <-client.Send:
		var envelope struct {
			Type string     `json:"type"`
			Data core.Event `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &envelope))
		assert.Equal(t, string(core.EventStatusChanged), envelope.Type)
		assert.Equal(t, uint(9), envelope.Data.ConversationID)
		require.NotNil(t, envelope.Data.Status)
		assert.Equal(t, models.RideStatusConfirmed, envelope.Data.Status.RideAStatus)
	case <-time.After(time.Second):
		t.Fatal("bus never delivered the event")
	}
}
