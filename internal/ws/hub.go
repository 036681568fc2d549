package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPubSubChannel = "chat:events"

// Hub manages WebSocket clients and fans chat events out to them
type Hub struct {
	// Registered clients grouped by user ID
	clients map[uint64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *targetedEvent

	// onDisconnect runs when a user's last connection closes
	onDisconnect func(userID uint64)

	mu          sync.RWMutex
	redisClient *redis.Client
	instanceID  string
	ctx         context.Context
	cancel      context.CancelFunc
}

type targetedEvent struct {
	UserIDs []uint64
	Data    []byte
}

type redisMessage struct {
	Origin  string          `json:"origin"`
	UserIDs []uint64        `json:"user_ids"`
	Event   json.RawMessage `json:"event"`
}

// NewHub creates a new Hub; redisClient may be nil (single instance)
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uint64]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *targetedEvent, 256),
		redisClient: redisClient,
		instanceID:  uuid.New().String(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnDisconnect sets the hook called after a user's last connection closes.
// Must be set before Run.
func (h *Hub) OnDisconnect(fn func(userID uint64)) {
	h.onDisconnect = fn
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Connected reports whether userID has at least one live connection here
func (h *Hub) Connected(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	if h.redisClient != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			if h.remove(client) {
				h.disconnected(client.userID)
			}

		case msg := <-h.broadcast:
			for _, userID := range h.deliver(msg) {
				h.disconnected(userID)
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// remove drops the client and reports whether it was the user's last one
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return false
	}
	if _, ok := clients[client]; !ok {
		return false
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
		return true
	}
	return false
}

func (h *Hub) disconnected(userID uint64) {
	if h.onDisconnect != nil {
		go h.onDisconnect(userID)
	}
}

// deliver sends msg to every recipient's clients. Slow clients are dropped;
// it returns the users whose last connection was dropped that way.
func (h *Hub) deliver(msg *targetedEvent) []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var gone []uint64
	for _, userID := range msg.UserIDs {
		clients, ok := h.clients[userID]
		if !ok {
			continue
		}
		for client := range clients {
			select {
			case client.send <- msg.Data:
			default:
				// 느린 클라이언트는 끊는다
				close(client.send)
				delete(clients, client)
			}
		}
		if len(clients) == 0 {
			delete(h.clients, userID)
			gone = append(gone, userID)
		}
	}
	return gone
}

// Publish implements events.Publisher: local delivery plus Redis fan-out
func (h *Hub) Publish(ctx context.Context, recipients []uint64, evt *events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	h.enqueue(&targetedEvent{UserIDs: recipients, Data: data})

	if h.redisClient == nil {
		return nil
	}
	payload, err := json.Marshal(&redisMessage{Origin: h.instanceID, UserIDs: recipients, Event: data})
	if err != nil {
		return err
	}
	return h.redisClient.Publish(ctx, redisPubSubChannel, payload).Err()
}

func (h *Hub) enqueue(msg *targetedEvent) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

// subscribeRedis delivers events published by other instances
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm redisMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
				logger.GetLogger().Warn().Err(err).Msg("invalid pub/sub payload")
				continue
			}
			// 자기 인스턴스가 보낸 것은 이미 로컬 전달됨
			if rm.Origin == h.instanceID {
				continue
			}
			h.enqueue(&targetedEvent{UserIDs: rm.UserIDs, Data: rm.Event})
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.cancel()
}
