package globe

import (
	"context"
	"fmt"
	"time"

	"github.com/john-huang-121/D3-globe/internal/websocket"
	"github.com/john-huang-121/D3-globe/pkg/logger"
)

const (
	syncTimeout = 2 * time.Second
	dragTimeout = 2 * time.Second
)

// Broadcaster fans a message out to every connected client
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// WebSocketHandler turns client messages into loop events and broadcasts
// rendered frames
type WebSocketHandler struct {
	loop        *Loop
	broadcaster Broadcaster
	logger      *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket message handler
func NewWebSocketHandler(loop *Loop, broadcaster Broadcaster, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		loop:        loop,
		broadcaster: broadcaster,
		logger:      log.Named("globe-ws-handler"),
	}
}

// Publish broadcasts a rendered frame
func (h *WebSocketHandler) Publish(frame *Frame) {
	h.broadcaster.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeFrame,
		Data: map[string]any{"frame": frame},
	})
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeDragStart:
		return h.transition(h.loop.DragStart, client)
	case websocket.MessageTypeDragMove:
		return h.handleDragMove(client, data)
	case websocket.MessageTypeDragEnd:
		return h.transition(h.loop.DragEnd, client)
	case websocket.MessageTypeTick:
		h.loop.Tick()
	case websocket.MessageTypeSyncRequest:
		return h.handleSyncRequest(client)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
	}
	return nil
}

func (h *WebSocketHandler) handleDragMove(client *websocket.Client, data map[string]any) error {
	dx, okX := number(data["dx"])
	dy, okY := number(data["dy"])
	if !okX || !okY {
		err := fmt.Errorf("drag_move needs numeric dx and dy")
		h.sendToClient(client, &websocket.Message{
			Type: websocket.MessageTypeError,
			Data: map[string]any{"message": err.Error()},
		})
		return err
	}
	h.loop.DragMove(owner(client), dx, dy)
	return nil
}

// HandleDisconnect ends any drag the departing client left open
func (h *WebSocketHandler) HandleDisconnect(client *websocket.Client) {
	if err := h.transition(h.loop.DragEnd, client); err != nil {
		h.logger.Warn("Failed to end drag of disconnected client",
			logger.String("client", owner(client)),
			logger.Error(err))
	}
}

// transition hands a drag start or end to the loop; unlike moves and ticks
// these are never dropped
func (h *WebSocketHandler) transition(fn func(context.Context, string) error, client *websocket.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), dragTimeout)
	defer cancel()
	return fn(ctx, owner(client))
}

// owner identifies the drags of one connection
func owner(client *websocket.Client) string {
	if client == nil {
		return ""
	}
	return client.ID()
}

// handleSyncRequest sends the full current picture to one client
func (h *WebSocketHandler) handleSyncRequest(client *websocket.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	frame, err := h.loop.Sync(ctx)
	if err != nil {
		h.logger.Error("Failed to build sync snapshot", logger.Error(err))
		return err
	}

	// Send to specific client (not broadcast)
	h.sendToClient(client, &websocket.Message{
		Type: websocket.MessageTypeSync,
		Data: map[string]any{"frame": frame},
	})
	return nil
}

// sendToClient sends a message to a specific client
func (h *WebSocketHandler) sendToClient(client *websocket.Client, message *websocket.Message) {
	if !client.SendMessage(message) {
		h.logger.Warn("Client send channel full, dropping message",
			logger.String("type", message.Type))
	}
}

// number accepts the numeric types produced by both JSON and msgpack decoding
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
