package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/vmihailenco/msgpack/v5"
)

type recordingHandler struct {
	mu           sync.Mutex
	received     []*Message
	ids          []string
	disconnected []string
}

func (h *recordingHandler) HandleMessage(client *Client, messageType string, data map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, &Message{Type: messageType, Data: data})
	h.ids = append(h.ids, client.ID())
	if messageType == MessageTypeSyncRequest {
		client.SendMessage(&Message{Type: MessageTypeSync, Data: map[string]any{"seq": 7}})
	}
	return nil
}

func (h *recordingHandler) HandleDisconnect(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, client.ID())
}

func (h *recordingHandler) gone() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.disconnected...)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startServer(t *testing.T) (*Server, *recordingHandler, string) {
	t.Helper()
	s := NewServer(logger.NewNop())
	handler := &recordingHandler{}
	s.SetMessageHandler(handler)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return s, handler, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerJSON(t *testing.T) {
	s, handler, url := startServer(t)
	conn := dial(t, url)
	waitFor(t, func() bool { return s.ClientCount() == 1 })

	if err := conn.WriteJSON(map[string]any{"type": MessageTypeDragMove, "data": map[string]any{"dx": 3, "dy": -2}}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return handler.count() == 1 })
	if got := handler.received[0]; got.Type != MessageTypeDragMove || got.Data["dx"] != float64(3) {
		t.Errorf("got %+v", got)
	}

	s.Broadcast(&Message{Type: MessageTypeFrame, Data: map[string]any{"seq": 1}})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if msg.Type != MessageTypeFrame || msg.Data["seq"] != float64(1) {
		t.Errorf("got %+v", msg)
	}

	// a sync reply goes only to the asking client
	conn.WriteJSON(map[string]any{"type": MessageTypeSyncRequest})
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if msg.Type != MessageTypeSync {
		t.Errorf("got %s, expected sync", msg.Type)
	}
}

func TestServerMsgpack(t *testing.T) {
	s, handler, url := startServer(t)
	conn := dial(t, url+"?encoding=msgpack")
	waitFor(t, func() bool { return s.ClientCount() == 1 })

	payload, err := msgpack.Marshal(map[string]any{"type": MessageTypeTick})
	if err != nil {
		t.Fatal(err)
	}
	conn.WriteMessage(websocket.BinaryMessage, payload)
	waitFor(t, func() bool { return handler.count() == 1 })

	s.Broadcast(&Message{Type: MessageTypeFrame, Data: map[string]any{"seq": 2}})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("got frame kind %d, expected binary", kind)
	}
	var msg struct {
		Type string         `msgpack:"type"`
		Data map[string]any `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if msg.Type != MessageTypeFrame {
		t.Errorf("got %+v", msg)
	}
}

func TestServerRejectsUnknownEncoding(t *testing.T) {
	_, _, url := startServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?encoding=xml", nil)
	if err == nil {
		t.Fatalf("expected the dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got %v, expected 400", resp)
	}
}

func TestServerUnregistersOnClose(t *testing.T) {
	s, handler, url := startServer(t)
	first := dial(t, url)
	second := dial(t, url)
	waitFor(t, func() bool { return s.ClientCount() == 2 })

	first.WriteJSON(map[string]any{"type": MessageTypeDragStart})
	second.WriteJSON(map[string]any{"type": MessageTypeDragStart})
	waitFor(t, func() bool { return handler.count() == 2 })

	handler.mu.Lock()
	ids := append([]string(nil), handler.ids...)
	handler.mu.Unlock()
	if ids[0] == "" || ids[0] == ids[1] {
		t.Fatalf("got ids %v, expected two distinct client ids", ids)
	}

	first.Close()
	waitFor(t, func() bool { return s.ClientCount() == 1 })
	waitFor(t, func() bool { return len(handler.gone()) == 1 })

	// the disconnect names the client that went away
	if gone := handler.gone()[0]; gone != ids[0] && gone != ids[1] {
		t.Errorf("got disconnect for %s, expected one of %v", gone, ids)
	}

	second.Close()
	waitFor(t, func() bool { return s.ClientCount() == 0 })
	waitFor(t, func() bool { return len(handler.gone()) == 2 })
	if gone := handler.gone(); gone[0] == gone[1] {
		t.Errorf("got disconnects %v, expected both clients", gone)
	}
}

func TestEncodeMsgpackKeepsZeroValues(t *testing.T) {
	type rotation struct {
		Lambda float64 `json:"lambda"`
		Phi    float64 `json:"phi"`
		Name   string  `json:"name,omitempty"`
	}
	kind, raw, err := encodeMessage(EncodingMsgpack, &Message{
		Type: MessageTypeFrame,
		Data: map[string]any{"rotation": rotation{Phi: -30}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("got frame kind %d, expected binary", kind)
	}

	var msg map[string]any
	if err := msgpack.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	data := msg["data"].(map[string]any)
	got := data["rotation"].(map[string]any)
	if v, ok := got["lambda"]; !ok || v != float64(0) {
		t.Errorf("got lambda %v (present %v), expected 0", v, ok)
	}
	if got["phi"] != float64(-30) {
		t.Errorf("got phi %v, expected -30", got["phi"])
	}
	if _, ok := got["name"]; ok {
		t.Errorf("name tagged omitempty should be left out")
	}
}

func TestDecodeMessage(t *testing.T) {
	if _, err := decodeMessage(websocket.TextMessage, []byte(`{"data":{}}`)); err == nil {
		t.Errorf("expected an error for a message without a type")
	}
	if _, err := decodeMessage(websocket.TextMessage, []byte(`not json`)); err == nil {
		t.Errorf("expected an error for malformed JSON")
	}
	msg, err := decodeMessage(websocket.TextMessage, []byte(`{"type":"drag_end"}`))
	if err != nil || msg.Type != MessageTypeDragEnd {
		t.Errorf("got %+v %v", msg, err)
	}
}
