package signal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ChangeSource is what the event stream subscribes to. AdaptationMonitor
// implements it.
type ChangeSource interface {
	Subscribe(fn services.AdaptationHandler) services.SubscriptionID
	Unsubscribe(id services.SubscriptionID) bool
}

type EventStreamOptions struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// ClientBuffer is the number of queued events per client. A client that
	// falls further behind is disconnected.
	ClientBuffer int
}

// EventStreamServer pushes adaptation changes to WebSocket clients.
type EventStreamServer struct {
	options EventStreamOptions
	logger  *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool

	source       ChangeSource
	subscription services.SubscriptionID
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	filterMu sync.RWMutex
	// filter is empty when the client wants every sender.
	filter map[domain.SenderID]struct{}
}

// EventMessage is the envelope of every frame written to clients.
type EventMessage struct {
	Type     string                   `json:"type"`
	SenderID domain.SenderID          `json:"sender_id,omitempty"`
	Change   *domain.AdaptationChange `json:"change,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

// ClientMessage is what clients may send to adjust their subscription.
type ClientMessage struct {
	Type      string            `json:"type"`
	SenderIDs []domain.SenderID `json:"sender_ids,omitempty"`
}

const (
	MessageAdaptationChange = "adaptation_change"
	MessageSubscribe        = "subscribe"
	MessageUnsubscribe      = "unsubscribe"
	MessageSubscribed       = "subscribed"
	MessagePing             = "ping"
	MessagePong             = "pong"
	MessageError            = "error"
)

func NewEventStreamServer(options EventStreamOptions, logger *zap.SugaredLogger) *EventStreamServer {
	if options.PingInterval <= 0 {
		options.PingInterval = 30 * time.Second
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = 10 * time.Second
	}
	if options.ClientBuffer <= 0 {
		options.ClientBuffer = 32
	}
	return &EventStreamServer{
		options: options,
		logger:  logger,
		clients: make(map[uuid.UUID]*client),
	}
}

// Attach subscribes the server to source. Only one source is kept; a second
// call replaces the first.
func (s *EventStreamServer) Attach(source ChangeSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		s.source.Unsubscribe(s.subscription)
	}
	s.source = source
	s.subscription = source.Subscribe(func(change domain.AdaptationChange) {
		s.Broadcast(change)
	})
}

// HandleWebSocket upgrades the request. Repeated sender_id query parameters
// restrict the stream to those senders.
func (s *EventStreamServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:     uuid.New(),
		conn:   conn,
		send:   make(chan []byte, s.options.ClientBuffer),
		done:   make(chan struct{}),
		filter: make(map[domain.SenderID]struct{}),
	}
	for _, id := range r.URL.Query()["sender_id"] {
		if id != "" {
			c.filter[domain.SenderID(id)] = struct{}{}
		}
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.logger.Infow("event stream client connected",
		"client_id", c.id,
		"remote_addr", r.RemoteAddr,
		"filter", len(c.filter),
	)

	go s.writePump(c)
	s.readPump(c)
}

// Broadcast queues change for every client interested in its sender.
func (s *EventStreamServer) Broadcast(change domain.AdaptationChange) {
	data, err := json.Marshal(EventMessage{
		Type:     MessageAdaptationChange,
		SenderID: change.SenderID,
		Change:   &change,
	})
	if err != nil {
		s.logger.Errorw("failed to encode adaptation change", "sender_id", change.SenderID, "error", err)
		return
	}

	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.wants(change.SenderID) {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			s.logger.Warnw("event stream client too slow, disconnecting", "client_id", c.id)
			s.drop(c)
		}
	}
}

func (s *EventStreamServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close detaches from the source and disconnects every client.
func (s *EventStreamServer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.source != nil {
		s.source.Unsubscribe(s.subscription)
		s.source = nil
	}
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.drop(c)
	}
}

func (s *EventStreamServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"clients":   s.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *EventStreamServer) readPump(c *client) {
	defer s.drop(c)

	readTimeout := 2 * s.options.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading from event stream client", "client_id", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if reply, err := s.handleMessage(c, msg); err != nil {
			s.enqueue(c, EventMessage{Type: MessageError, Message: err.Error()})
		} else if reply != nil {
			s.enqueue(c, *reply)
		}
	}
}

func (s *EventStreamServer) handleMessage(c *client, msg ClientMessage) (*EventMessage, error) {
	switch msg.Type {
	case MessageSubscribe:
		c.filterMu.Lock()
		for _, id := range msg.SenderIDs {
			c.filter[id] = struct{}{}
		}
		c.filterMu.Unlock()
		return &EventMessage{Type: MessageSubscribed}, nil

	case MessageUnsubscribe:
		c.filterMu.Lock()
		if len(msg.SenderIDs) == 0 {
			c.filter = make(map[domain.SenderID]struct{})
		}
		for _, id := range msg.SenderIDs {
			delete(c.filter, id)
		}
		c.filterMu.Unlock()
		return &EventMessage{Type: MessageSubscribed}, nil

	case MessagePing:
		return &EventMessage{Type: MessagePong}, nil

	case "":
		return nil, fmt.Errorf("message type is required")
	default:
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *EventStreamServer) writePump(c *client) {
	ticker := time.NewTicker(s.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Infow("error writing to event stream client", "client_id", c.id, "error", err)
				s.drop(c)
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.drop(c)
				_ = c.conn.Close()
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		}
	}
}

func (s *EventStreamServer) enqueue(c *client, msg EventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		s.drop(c)
	}
}

func (s *EventStreamServer) drop(c *client) {
	c.once.Do(func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()

		close(c.done)
		s.logger.Infow("event stream client disconnected", "client_id", c.id)
	})
}

func (c *client) wants(id domain.SenderID) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()

	if len(c.filter) == 0 {
		return true
	}
	_, ok := c.filter[id]
	return ok
}
