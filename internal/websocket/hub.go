package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/quest-league/internal/domain"
)

// Message types
const (
	MessageTypeLeaderboardUpdate  = "leaderboard_update"
	MessageTypeSubmissionAccepted = "submission_accepted"
	MessageTypeSubscribe          = "subscribe"
	MessageTypeUnsubscribe        = "unsubscribe"
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
	MessageTypeError              = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	SeasonID  string      `json:"season_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// LeaderboardUpdate contains a ranked leaderboard page for broadcast
type LeaderboardUpdate struct {
	SeasonID          string                    `json:"season_id"`
	Entries           []domain.LeaderboardEntry `json:"leaderboard"`
	TotalParticipants int                       `json:"total_participants"`
}

// Hub maintains the set of active clients and broadcasts messages to
// clients subscribed by season.
type Hub struct {
	// Registered clients by season ID
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client   *Client
	seasonID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all season subscriptions
				for seasonID, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, seasonID)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.seasonID]; !ok {
				h.clients[req.seasonID] = make(map[*Client]bool)
			}
			h.clients[req.seasonID][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "season_id", req.seasonID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.seasonID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.seasonID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "season_id", req.seasonID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If the message carries a season ID, only send to subscribed clients
	if message.SeasonID != "" {
		if clients, ok := h.clients[message.SeasonID]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastLeaderboardUpdate pushes a ranked leaderboard page to clients
// subscribed to the season.
func (h *Hub) BroadcastLeaderboardUpdate(seasonID string, entries []domain.LeaderboardEntry, totalParticipants int) {
	message := &Message{
		Type:     MessageTypeLeaderboardUpdate,
		SeasonID: seasonID,
		Data: LeaderboardUpdate{
			SeasonID:          seasonID,
			Entries:           entries,
			TotalParticipants: totalParticipants,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastSubmissionAccepted notifies season subscribers of an accepted
// submission.
func (h *Hub) BroadcastSubmissionAccepted(seasonID string, sub domain.Submission) {
	message := &Message{
		Type:     MessageTypeSubmissionAccepted,
		SeasonID: seasonID,
		Data: map[string]interface{}{
			"agent_name": sub.AgentName,
			"day":        sub.Day,
			"quest_id":   sub.QuestID,
			"score":      sub.Score,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a season subscription
func (h *Hub) Subscribe(client *Client, seasonID string) {
	h.subscribe <- &subscriptionRequest{
		client:   client,
		seasonID: seasonID,
	}
}

// Unsubscribe removes a client from a season subscription
func (h *Hub) Unsubscribe(client *Client, seasonID string) {
	h.unsubscribe <- &subscriptionRequest{
		client:   client,
		seasonID: seasonID,
	}
}

// GetSubscriberCount returns the number of subscribers for a season
func (h *Hub) GetSubscriberCount(seasonID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[seasonID]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
