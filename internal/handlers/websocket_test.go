package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/models"
)

func dialTestSocket(t *testing.T, handler *WebSocketHandler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilType reads messages until one of the given type arrives
func readUntilType(t *testing.T, conn *websocket.Conn, msgType string, within time.Duration) *WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(within))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("No %q message received: %v", msgType, err)
		}
		if msg.Type == msgType {
			return &msg
		}
	}
}

func TestWebSocketHelloOnConnect(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{})
	conn := dialTestSocket(t, handler)

	msg := readUntilType(t, conn, "hello", 2*time.Second)
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected hello payload shape: %+v", msg.Payload)
	}
	if id, _ := payload["server_instance_id"].(string); id == "" {
		t.Fatalf("hello payload missing server instance id: %+v", msg.Payload)
	}
}

func TestWebSocketStageBroadcast(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{})
	conn := dialTestSocket(t, handler)
	readUntilType(t, conn, "hello", 2*time.Second)

	handler.broadcastStageChange(&models.StageChangeEvent{
		JobID: "job_1", ClientID: "client_1", Stage: models.StageAnalyzing,
	})

	msg := readUntilType(t, conn, "stage_changed", 2*time.Second)
	data, _ := json.Marshal(msg.Payload)
	var change models.StageChangeEvent
	if err := json.Unmarshal(data, &change); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if change.JobID != "job_1" || change.Stage != models.StageAnalyzing {
		t.Errorf("unexpected payload: %+v", change)
	}
}

func TestWebSocketSubscriptionFilter(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{})
	conn := dialTestSocket(t, handler)
	readUntilType(t, conn, "hello", 2*time.Second)

	// Scope this socket to client_a
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "client_id": "client_a"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	// An update for another client must not arrive
	handler.broadcastStageChange(&models.StageChangeEvent{
		JobID: "job_other", ClientID: "client_b", Stage: models.StageGenerating,
	})
	// One for the subscribed client must
	handler.broadcastStageChange(&models.StageChangeEvent{
		JobID: "job_mine", ClientID: "client_a", Stage: models.StageGenerating,
	})

	msg := readUntilType(t, conn, "stage_changed", 2*time.Second)
	data, _ := json.Marshal(msg.Payload)
	var change models.StageChangeEvent
	if err := json.Unmarshal(data, &change); err != nil {
		t.Fatal(err)
	}
	if change.JobID != "job_mine" {
		t.Errorf("received update for unsubscribed client: %+v", change)
	}
}

func TestWebSocketCompleteNeverThrottled(t *testing.T) {
	// Aggressive throttle so intermediate events are dropped
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{StageThrottle: "1h"})
	conn := dialTestSocket(t, handler)
	readUntilType(t, conn, "hello", 2*time.Second)

	handler.broadcastStageChange(&models.StageChangeEvent{JobID: "job_t", ClientID: "c", Stage: models.StageAnalyzing})
	handler.broadcastStageChange(&models.StageChangeEvent{JobID: "job_t", ClientID: "c", Stage: models.StageGenerating})
	handler.broadcastStageChange(&models.StageChangeEvent{JobID: "job_t", ClientID: "c", Stage: models.StageFinalizing})
	handler.broadcastStageChange(&models.StageChangeEvent{JobID: "job_t", ClientID: "c", Stage: models.StageComplete})

	var stages []models.VisualStage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type != "stage_changed" {
			continue
		}
		data, _ := json.Marshal(msg.Payload)
		var change models.StageChangeEvent
		if err := json.Unmarshal(data, &change); err != nil {
			t.Fatal(err)
		}
		stages = append(stages, change.Stage)
		if change.Stage == models.StageComplete {
			break
		}
	}

	// The first event passes the limiter, the middle two are throttled
	// away, and complete must always arrive.
	if len(stages) == 0 || stages[len(stages)-1] != models.StageComplete {
		t.Fatalf("complete transition was throttled: %v", stages)
	}
	for _, stage := range stages[1 : len(stages)-1] {
		if stage == models.StageGenerating || stage == models.StageFinalizing {
			t.Errorf("intermediate stage %s escaped the throttle", stage)
		}
	}
}

func TestBroadcastLogFanOut(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{})
	first := dialTestSocket(t, handler)
	second := dialTestSocket(t, handler)
	readUntilType(t, first, "hello", 2*time.Second)
	readUntilType(t, second, "hello", 2*time.Second)

	handler.BroadcastLog(LogEntry{Timestamp: "10:15:00", Level: "info", Message: "report export started"})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readUntilType(t, conn, "log", 2*time.Second)
		data, _ := json.Marshal(msg.Payload)
		var entry LogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			t.Fatal(err)
		}
		if entry.Message != "report export started" || entry.Level != "info" {
			t.Errorf("unexpected log entry: %+v", entry)
		}
	}
}

func TestWebSocketWriterLifecycle(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{MinLevel: "warn"})
	writer, err := NewWebSocketWriter(handler, arbormodels.WriterConfiguration{
		Type:       arbormodels.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
	}, &common.WebSocketConfig{MinLevel: "warn"})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if writer.GetFilePath() != "" {
		t.Error("writer should not report a file path")
	}
	if err := writer.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"info":    "info",
		"warn":    "warn",
		"WARNING": "warn",
		"error":   "error",
		"bogus":   "info",
		"":        "info",
	}
	for input, want := range cases {
		if got := mapLevel(parseLogLevel(input)); got != want {
			t.Errorf("parseLogLevel(%q) mapped to %q, want %q", input, got, want)
		}
	}
}
