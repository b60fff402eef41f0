// Package live fans order events out to WebSocket clients watching a game.
package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stockgame/internal/metrics"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

type Event struct {
	Type      string    `json:"type"`
	GameID    string    `json:"gameId"`
	PlayerID  string    `json:"playerId"`
	StockID   string    `json:"stockId,omitempty"`
	Ticker    string    `json:"ticker,omitempty"`
	OrderType string    `json:"orderType,omitempty"`
	Quantity  string    `json:"quantity,omitempty"`
	Price     string    `json:"price,omitempty"`
	Value     string    `json:"value,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type client struct {
	gameID string
	conn   *websocket.Conn
	send   chan []byte
}

type message struct {
	gameID string
	data   []byte
}

// Hub tracks clients per game. Publish never blocks the caller: when the
// broadcast buffer or a client's send buffer is full the message is dropped
// for that client.
type Hub struct {
	clients    map[string]map[*client]struct{}
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once
	log        *slog.Logger

	mu sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    map[string]map[*client]struct{}{},
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run is the hub's event loop; it returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, room := range h.clients {
				for c := range room {
					close(c.send)
				}
			}
			h.clients = map[string]map[*client]struct{}{}
			h.mu.Unlock()
			metrics.LiveClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			room, ok := h.clients[c.gameID]
			if !ok {
				room = map[*client]struct{}{}
				h.clients[c.gameID] = room
			}
			room[c] = struct{}{}
			h.mu.Unlock()
			metrics.LiveClients.Inc()
			h.log.Info("live client connected", "game_id", c.gameID)

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients[msg.gameID] {
				select {
				case c.send <- msg.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.remove(c)
			}
		}
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.clients[c.gameID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.clients, c.gameID)
	}
	close(c.send)
	metrics.LiveClients.Dec()
}

func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- message{gameID: ev.GameID, data: data}:
	default:
		h.log.Warn("live broadcast buffer full, dropping event", "game_id", ev.GameID, "type", ev.Type)
	}
}

// ClientCount returns the number of clients watching gameID.
func (h *Hub) ClientCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[gameID])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Serve upgrades the request and streams gameID's events until the peer
// goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "err", err)
		return
	}
	c := &client{gameID: gameID, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go func() {
		c.readPump()
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
}

func (c *client) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
