// -----------------------------------------------------------------------
// WebSocket Handler - Push channel for job updates and stage changes
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every push-channel message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// LogEntry is the UI shape of a broadcast service log line
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// wsClient is one connected socket. Writes are serialized per connection;
// clientID scopes which job updates the socket receives (empty = all).
type wsClient struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	clientID string
}

type WebSocketHandler struct {
	logger       arbor.ILogger
	eventService interfaces.EventService

	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient

	// stageThrottlers limits stage_change frequency per job; completion
	// messages bypass throttling entirely.
	throttleMu      sync.Mutex
	stageThrottlers map[string]*rate.Limiter
	stageInterval   time.Duration

	serverInstanceID string // clients use this to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		eventService:     eventService,
		clients:          make(map[*websocket.Conn]*wsClient),
		stageThrottlers:  make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil && config.StageThrottle != "" {
		if interval, err := time.ParseDuration(config.StageThrottle); err == nil {
			h.stageInterval = interval
		} else {
			logger.Warn().Err(err).
				Str("interval", config.StageThrottle).
				Msg("Failed to parse stage throttle interval - throttling disabled")
		}
	}

	if eventService != nil {
		h.subscribe()
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

func (h *WebSocketHandler) subscribe() {
	_ = h.eventService.Subscribe(interfaces.EventStageChanged, func(ctx context.Context, event interfaces.Event) error {
		if change, ok := event.Payload.(*models.StageChangeEvent); ok {
			h.broadcastStageChange(change)
		}
		return nil
	})
	_ = h.eventService.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		if update, ok := event.Payload.(*models.JobUpdateEvent); ok {
			h.broadcastJobUpdate(update)
		}
		return nil
	})
}

// HandleWebSocket upgrades the connection and runs the read loop
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[conn] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", total)

	h.send(client, WSMessage{
		Type: "hello",
		Payload: map[string]interface{}{
			"server_instance_id": h.serverInstanceID,
			"timestamp":          time.Now().Format(time.RFC3339),
		},
	})

	h.readLoop(client)
}

// readLoop consumes control messages until the socket closes. The only
// inbound message is the subscription filter.
func (h *WebSocketHandler) readLoop(client *wsClient) {
	defer h.removeClient(client)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type     string `json:"type"`
			ClientID string `json:"client_id"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug().Err(err).Msg("Ignoring malformed WebSocket message")
			continue
		}

		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			client.clientID = msg.ClientID
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", msg.ClientID).Msg("WebSocket subscription updated")
		case "ping":
			h.send(client, WSMessage{Type: "pong"})
		}
	}
}

func (h *WebSocketHandler) removeClient(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client.conn)
	total := len(h.clients)
	h.mu.Unlock()

	client.conn.Close()
	h.logger.Debug().Msgf("WebSocket client disconnected (total: %d)", total)
}

// broadcastStageChange pushes a stage transition to subscribed sockets.
// Intermediate transitions for a job may be coalesced under load, but a
// complete transition is always delivered.
func (h *WebSocketHandler) broadcastStageChange(change *models.StageChangeEvent) {
	if change.Stage != models.StageComplete && h.stageInterval > 0 {
		if !h.throttlerFor(change.JobID).Allow() {
			return
		}
	}
	if change.Stage == models.StageComplete {
		h.dropThrottler(change.JobID)
	}

	h.broadcast(change.ClientID, WSMessage{Type: "stage_changed", Payload: change})
}

func (h *WebSocketHandler) broadcastJobUpdate(update *models.JobUpdateEvent) {
	clientID := ""
	if update.Record != nil {
		clientID = update.Record.ClientID
	}
	h.broadcast(clientID, WSMessage{Type: "job_updated", Payload: update})
}

// BroadcastLog forwards a service log line to every connected socket
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.broadcast("", WSMessage{Type: "log", Payload: entry})
}

// broadcast sends a message to every socket whose subscription matches the
// target client. An empty target, or an unfiltered socket, matches all.
func (h *WebSocketHandler) broadcast(targetClientID string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		if targetClientID != "" && client.clientID != "" && client.clientID != targetClientID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.writeMu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.writeMu.Unlock()
		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
		}
	}
}

func (h *WebSocketHandler) send(client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	_ = client.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WebSocketHandler) throttlerFor(jobID string) *rate.Limiter {
	h.throttleMu.Lock()
	defer h.throttleMu.Unlock()
	limiter, ok := h.stageThrottlers[jobID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.stageInterval), 1)
		h.stageThrottlers[jobID] = limiter
	}
	return limiter
}

func (h *WebSocketHandler) dropThrottler(jobID string) {
	h.throttleMu.Lock()
	delete(h.stageThrottlers, jobID)
	h.throttleMu.Unlock()
}

// ClientCount returns the number of connected sockets
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
