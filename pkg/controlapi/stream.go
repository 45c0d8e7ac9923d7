package controlapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/warden/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 5 * time.Second
	clientSendSize = 4
)

// streamClient is one connected status subscriber.
type streamClient struct {
	ID          string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// streamHub fans status snapshots out to stream clients.
type streamHub struct {
	interval time.Duration
	status   func() agent.Status
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*streamClient

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newStreamHub(interval time.Duration, status func() agent.Status, logger zerolog.Logger) *streamHub {
	return &streamHub{
		interval: interval,
		status:   status,
		logger:   logger,
		clients:  make(map[string]*streamClient),
		stopCh:   make(chan struct{}),
	}
}

func (h *streamHub) start() {
	h.wg.Add(1)
	go h.tick()
}

func (h *streamHub) stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	h.wg.Wait()

	h.mu.Lock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

func (h *streamHub) tick() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			if h.count() == 0 {
				continue
			}
			h.broadcast(h.status())
		}
	}
}

// broadcast drops the frame for clients whose buffer is full.
func (h *streamHub) broadcast(st agent.Status) {
	data, err := json.Marshal(st)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal status")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug().Str("client_id", c.ID).Msg("Stream client lagging, frame dropped")
		}
	}
}

func (h *streamHub) add(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

func (h *streamHub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *streamHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client ID")
		conn.Close()
		return
	}

	client := &streamClient{
		ID:          clientID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, clientSendSize),
	}
	s.stream.add(client)
	s.logger.Info().Str("client_id", clientID).Str("remote", r.RemoteAddr).Msg("Stream client connected")

	// First frame goes out immediately so the panel does not wait a tick.
	if data, err := json.Marshal(s.controller.Status()); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}

	go s.writePump(client)
	s.readPump(client)
}

// readPump discards inbound frames and unregisters on disconnect.
func (s *Server) readPump(c *streamClient) {
	defer func() {
		s.stream.remove(c.ID)
		s.logger.Info().Str("client_id", c.ID).Msg("Stream client disconnected")
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *streamClient) {
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug().Err(err).Str("client_id", c.ID).Msg("Stream write failed")
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
