// internal/websocket/hub.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	wstypes "medlink-service/internal/domain/websocket"
	"medlink-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier validates the access token presented on connect.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

// RevocationChecker reports tokens that were logged out before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MessageHandler serves one group of client events.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
	SupportedEvents() []wstypes.EventType
}

type HubOption func(*Hub)

// WithRevocations refuses connections made with a revoked token.
func WithRevocations(r RevocationChecker) HubOption {
	return func(h *Hub) { h.revocations = r }
}

type Hub struct {
	// Registered clients by user id
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	// handlers is written only before Run starts
	handlers    map[wstypes.EventType]MessageHandler
	verifier    TokenVerifier
	revocations RevocationChecker
	logger      *zap.Logger
}

type BroadcastMessage struct {
	UserIDs []string // nil means every connected user
	Channel wstypes.ChannelType
	Message *wstypes.WSMessage
}

func NewHub(verifier TokenVerifier, logger *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		handlers:   make(map[wstypes.EventType]MessageHandler),
		verifier:   verifier,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AuthenticateClient validates the JWT token presented on connect
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	if h.revocations != nil && claims.ID != "" {
		revoked, err := h.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, errors.Join(ErrUnauthorized, errors.New("token has been revoked"))
		}
	}

	return &ClientAuth{
		UserID:   claims.UserID(),
		Role:     claims.Role,
		EntityID: claims.EntityID,
		TokenID:  claims.ID,
	}, nil
}

// RegisterHandler routes the handler's supported events to it. Call it
// before Run.
func (h *Hub) RegisterHandler(handler MessageHandler) {
	for _, event := range handler.SupportedEvents() {
		h.handlers[event] = handler
	}
}

// HandleClientMessage routes a client message to its registered handler.
// handled is false when no handler claims the event type.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := h.handlers[msg.Type]
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	total := h.totalClients()
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		zap.String("user_id", client.userID),
		zap.String("role", client.role),
		zap.Int("total", total),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"user_id":   client.userID,
		"role":      client.role,
		"entity_id": client.entityID,
		"channels":  client.Channels(),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}

	h.logger.Info("websocket client disconnected",
		zap.String("user_id", client.userID),
		zap.Int("total", h.totalClients()),
	)
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	send := func(clients map[*Client]bool) {
		for client := range clients {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}

	if msg.UserIDs == nil {
		for _, clients := range h.clients {
			send(clients)
		}
		return
	}
	for _, userID := range msg.UserIDs {
		send(h.clients[userID])
	}
}

// enqueue never blocks the caller; a full queue drops the event.
func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping event",
			zap.String("type", string(msg.Message.Type)),
		)
	}
}

func (h *Hub) ConnectedClients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// PushNotification sends a stored notification to the user's live connections.
func (h *Hub) PushNotification(userID string, data *wstypes.NotificationData) {
	h.enqueue(&BroadcastMessage{
		UserIDs: []string{userID},
		Channel: wstypes.ChannelNotifications,
		Message: wstypes.NewMessage(wstypes.EventTypeNotification, data),
	})
}

func (h *Hub) PushUnreadCount(userID string, count int64) {
	h.enqueue(&BroadcastMessage{
		UserIDs: []string{userID},
		Channel: wstypes.ChannelNotifications,
		Message: wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
			"unread_count": count,
		}),
	})
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
		delete(h.clients, userID)
	}
}
