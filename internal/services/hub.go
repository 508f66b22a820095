package services

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client is one websocket session subscribed to a set of conversation
// topics. Topics are fixed at session start from the owning ride's
// active refs; a reconnect picks up newly created conversations.
type Client struct {
	UserID uint
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
	topics map[uint]bool
}

// Hub maintains the set of active clients and fans conversation events
// out to the sessions subscribed to each conversation id.
type Hub struct {
	clients    map[*Client]bool
	byTopic    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

// NewHub creates a new websocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byTopic:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			for topic := range client.topics {
				if h.byTopic[topic] == nil {
					h.byTopic[topic] = make(map[*Client]bool)
				}
				h.byTopic[topic][client] = true
			}
			h.mutex.Unlock()
			log.Printf("Client %d connected (%d topics)", client.UserID, len(client.topics))

		case client := <-h.unregister:
			h.mutex.Lock()
			h.dropClient(client)
			h.mutex.Unlock()
			log.Printf("Client %d disconnected", client.UserID)
		}
	}
}

// dropClient removes a client from every topic. Caller holds the lock.
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	for topic := range client.topics {
		if subs := h.byTopic[topic]; subs != nil {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.byTopic, topic)
			}
		}
	}
}

// BroadcastToConversation sends a message to every session subscribed
// to the conversation. Delivery is best-effort: a session with a full
// send buffer is dropped and must reconcile by re-fetching.
func (h *Hub) BroadcastToConversation(conversationID uint, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.byTopic[conversationID] {
		select {
		case client.Send <- message:
		default:
			log.Printf("Warning: dropping slow client %d", client.UserID)
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// SubscriberCount returns how many sessions watch a conversation.
func (h *Hub) SubscriberCount(conversationID uint) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.byTopic[conversationID])
}

// HandleWebSocket upgrades the request and registers the session with
// its conversation subscriptions.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID uint, conversationIDs []uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	topics := make(map[uint]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		topics[id] = true
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Hub:    hub,
		topics: topics,
	}

	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection until it closes. Inbound frames carry
// no commands; clients mutate state over HTTP and reconcile by
// re-fetching.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// WebSocketMessage is the envelope every event is delivered in.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
