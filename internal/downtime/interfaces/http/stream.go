package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"plant-downtime/internal/downtime/application"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StatusBoard exposes the projected line status board.
type StatusBoard interface {
	Board() []application.SiteStatus
}

// StatusMessage is pushed to stream clients.
type StatusMessage struct {
	Type      string                   `json:"type"`
	Timestamp string                   `json:"timestamp"`
	Sites     []application.SiteStatus `json:"sites"`
}

// StatusBroker fans out status boards to connected clients.
type StatusBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	sites   []byte
	last    []byte
}

// NewStatusBroker constructs a broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{clients: make(map[chan []byte]struct{})}
}

// Subscribe registers a client channel primed with the latest board.
func (b *StatusBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	if b.last != nil {
		ch <- b.last
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *StatusBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Clients reports the number of connected clients.
func (b *StatusBroker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Publish sends board to every client unless it equals the last one.
// It reports whether anything was sent.
func (b *StatusBroker) Publish(board []application.SiteStatus, now time.Time) bool {
	sites, err := json.Marshal(board)
	if err != nil {
		return false
	}
	b.mu.Lock()
	if b.sites != nil && bytes.Equal(b.sites, sites) {
		b.mu.Unlock()
		return false
	}
	payload, err := json.Marshal(StatusMessage{Type: "line_status", Timestamp: now.Format(timeLayout), Sites: board})
	if err != nil {
		b.mu.Unlock()
		return false
	}
	b.sites = sites
	b.last = payload
	clients := make([]chan []byte, 0, len(b.clients))
	for ch := range b.clients {
		clients = append(clients, ch)
	}
	b.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- payload:
		default:
		}
	}
	return true
}

// StatusPublisher polls the status board and publishes changes.
type StatusPublisher struct {
	board    StatusBoard
	broker   *StatusBroker
	interval time.Duration
	logger   *log.Logger
}

// NewStatusPublisher constructs a publisher.
func NewStatusPublisher(board StatusBoard, broker *StatusBroker, interval time.Duration, logger *log.Logger) *StatusPublisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusPublisher{board: board, broker: broker, interval: interval, logger: logger}
}

// Start runs the publish loop until ctx is cancelled.
func (p *StatusPublisher) Start(ctx context.Context) {
	if p == nil || p.board == nil || p.broker == nil {
		return
	}
	p.broker.Publish(p.board.Board(), time.Now())
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if p.broker.Publish(p.board.Board(), now) && p.logger != nil {
					p.logger.Printf("line status stream: pushed update to %d client(s)", p.broker.Clients())
				}
			}
		}
	}()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler serves the line status websocket.
type StreamHandler struct {
	broker *StatusBroker
	logger *log.Logger
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *StatusBroker, logger *log.Logger) *StreamHandler {
	return &StreamHandler{broker: broker, logger: logger}
}

// ServeHTTP handles GET /api/v1/lines/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("line status stream: upgrade: %v", err)
		}
		return
	}
	defer conn.Close()

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case payload := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
