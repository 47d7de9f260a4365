package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/vmihailenco/msgpack/v5"
)

// Message types exchanged with the host page
const (
	MessageTypeDragStart   = "drag_start"   // Client pressed on the globe
	MessageTypeDragMove    = "drag_move"    // Client moved by dx, dy pixels
	MessageTypeDragEnd     = "drag_end"     // Client released
	MessageTypeTick        = "tick"         // Client display refresh
	MessageTypeSyncRequest = "sync_request" // Client asks for the full picture
	MessageTypeFrame       = "frame"        // Server sends a rendered frame
	MessageTypeSync        = "sync"         // Server sends the full picture
	MessageTypeError       = "error"        // Server rejects a message
)

// Wire encodings, selected per connection with ?encoding=
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data map[string]any) error
}

// DisconnectHandler is implemented by message handlers that need to know
// when a client goes away
type DisconnectHandler interface {
	HandleDisconnect(client *Client)
}

// Client represents a WebSocket client
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	encoding  string
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server represents a WebSocket server
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	done           chan struct{}
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler // Handler for incoming messages
	nextID         atomic.Uint64
}

// NewServer creates a new WebSocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, sendBufferSize),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: log.Named("web-socket"),
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Run starts the WebSocket hub and blocks until ctx is cancelled, then
// closes every client.
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				s.closeSend(client)
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered",
				logger.String("client", client.id),
				logger.Int("client_count", clientCount),
				logger.String("encoding", client.encoding))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				s.closeSend(client)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			clientsToRemove := make([]*Client, 0)
			for client := range s.clients {
				client.mu.Lock()
				if client.closed {
					clientsToRemove = append(clientsToRemove, client)
					client.mu.Unlock()
					continue
				}
				client.mu.Unlock()

				select {
				case client.send <- message:
				default:
					// Channel is full, mark for removal
					clientsToRemove = append(clientsToRemove, client)
				}
			}
			s.mu.RUnlock()

			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						s.closeSend(client)
					}
				}
				s.mu.Unlock()
				s.logger.Warn("Dropped slow clients", logger.Int("count", len(clientsToRemove)))
			}
		}
	}
}

// closeSend marks client closed and closes its send channel; callers hold s.mu
func (s *Server) closeSend(client *Client) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.closed {
		return
	}
	client.closed = true
	close(client.send)
}

// HandleConnection upgrades the request and registers the client
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	encoding := r.URL.Query().Get("encoding")
	switch encoding {
	case "":
		encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		http.Error(w, fmt.Sprintf("unsupported encoding: %s", encoding), http.StatusBadRequest)
		return
	}

	s.logger.Info("Handling new WebSocket connection request",
		logger.String("remote_addr", r.RemoteAddr),
		logger.String("user_agent", r.UserAgent()),
		logger.String("encoding", encoding))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		id:        fmt.Sprintf("client-%d", s.nextID.Add(1)),
		conn:      conn,
		send:      make(chan *Message, sendBufferSize),
		server:    s,
		encoding:  encoding,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for every connected client. It never blocks;
// when the hub is backed up the message is dropped.
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	default:
		s.logger.Warn("Broadcast queue full, dropping message",
			logger.String("message_type", message.Type))
	}
}

// ID returns an identifier unique within this server
func (c *Client) ID() string { return c.id }

// Encoding returns the wire encoding negotiated for this client
func (c *Client) Encoding() string { return c.encoding }

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
		if h, ok := c.server.messageHandler.(DisconnectHandler); ok {
			h.HandleDisconnect(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			break
		}

		message, err := decodeMessage(kind, messageBytes)
		if err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", logger.Error(err))
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			logger.String("type", message.Type),
			logger.String("client", c.conn.RemoteAddr().String()))

		if c.server.messageHandler != nil {
			if err := c.server.messageHandler.HandleMessage(c, message.Type, message.Data); err != nil {
				c.server.logger.Error("Failed to handle WebSocket message",
					logger.Error(err),
					logger.String("type", message.Type))
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			kind, data, err := encodeMessage(c.encoding, message)
			if err != nil {
				c.server.logger.Error("Failed to encode message",
					logger.Error(err),
					logger.String("message_type", message.Type))
				continue
			}
			if err := c.conn.WriteMessage(kind, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closeChan:
		return
	default:
	}
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		// Channel is full, drop message
		return false
	}
}

// encodeMessage marshals message for the given encoding. msgpack messages
// go out as binary frames and reuse the JSON field names.
func encodeMessage(encoding string, message *Message) (int, []byte, error) {
	if encoding != EncodingMsgpack {
		data, err := json.Marshal(message)
		return websocket.TextMessage, data, err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(message); err != nil {
		return 0, nil, err
	}
	return websocket.BinaryMessage, buf.Bytes(), nil
}

// decodeMessage parses a text frame as JSON and a binary frame as msgpack
func decodeMessage(kind int, data []byte) (*Message, error) {
	var message Message
	if kind == websocket.BinaryMessage {
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(&message); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, &message); err != nil {
		return nil, err
	}
	if message.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &message, nil
}
