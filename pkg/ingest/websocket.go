package ingest

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicktill/munin2tinyobs/pkg/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Same-origin browsers, or non-browser clients that send no Origin
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// Progress event types
const (
	EventArchiveImported = "archive_imported"
	EventArchiveFailed   = "archive_failed"
	EventPointsWritten   = "points_written"
)

// ProgressEvent is pushed to websocket clients as imports complete
type ProgressEvent struct {
	Type        string         `json:"type"`
	Path        string         `json:"path,omitempty"`
	Measurement string         `json:"measurement,omitempty"`
	Points      int            `json:"points"`
	PointsByCF  map[string]int `json:"points_by_cf,omitempty"`
	Batches     int            `json:"batches,omitempty"`
	Error       string         `json:"error,omitempty"`
	Time        time.Time      `json:"time"`
}

// subscriber is one connected client. Only its writer goroutine touches conn
// for writes; the hub hands it messages through send.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// ProgressHub fans import progress out to websocket subscribers
type ProgressHub struct {
	subscribers map[*subscriber]struct{}

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// NewProgressHub creates a hub. Nothing is delivered until Run is started.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[*subscriber]struct{}),
		register:    make(chan *subscriber, config.WSChannelBuffer),
		unregister:  make(chan *subscriber, config.WSChannelBuffer),
		broadcast:   make(chan []byte, config.WSBroadcastBuffer),
		done:        make(chan struct{}),
	}
}

// Run owns the subscriber set until ctx is cancelled
func (h *ProgressHub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subscribers {
				h.drop(s)
			}
			h.mu.Unlock()
			return

		case s := <-h.register:
			h.mu.Lock()
			h.subscribers[s] = struct{}{}
			count := len(h.subscribers)
			h.mu.Unlock()
			log.Printf("🔌 WebSocket client connected (total: %d)", count)

		case s := <-h.unregister:
			h.mu.Lock()
			h.drop(s)
			count := len(h.subscribers)
			h.mu.Unlock()
			log.Printf("🔌 WebSocket client disconnected (total: %d)", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for s := range h.subscribers {
				select {
				case s.send <- message:
				default:
					log.Printf("⚠️  WebSocket client too slow, disconnecting")
					h.drop(s)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes s and closes its send channel. Callers hold h.mu.
func (h *ProgressHub) drop(s *subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
}

// Publish sends an event to all connected clients. Events are dropped when
// the broadcast buffer is full; imports never wait on slow clients.
func (h *ProgressHub) Publish(ev ProgressEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	message, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
	default:
		log.Printf("Broadcast channel full, dropping %s event", ev.Type)
	}
	return nil
}

// HasClients returns true if there are any connected WebSocket clients
func (h *ProgressHub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers) > 0
}

// HandleWebSocket upgrades the request and streams progress events until
// the client goes away or the hub stops
func (h *ProgressHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, config.WSClientBuffer)}
	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go s.writeLoop()

	defer func() {
		select {
		case h.unregister <- s:
		case <-h.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	// Clients only send control frames; read until close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// writeLoop delivers queued events and keepalive pings. It closes the
// connection once the hub closes send, which also ends the read loop.
func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
