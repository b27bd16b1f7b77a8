// Package api exposes the live ticker stream: every settled tick's price
// points are broadcast as JSON to connected websocket clients.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TickUpdate is the wire shape of one broadcast frame.
type TickUpdate struct {
	Tick   int64        `json:"tick"`
	Prices []PriceEntry `json:"prices"`
}

// PriceEntry carries one asset's price and rolling averages.
type PriceEntry struct {
	Asset        string `json:"asset"`
	Price        int64  `json:"price"`
	DayAverage   int64  `json:"day_average"`
	WeekAverage  int64  `json:"week_average"`
	MonthAverage int64  `json:"month_average"`
}

// Hub maintains active websocket connections and fans broadcast frames out
// to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	log        *slog.Logger
}

// NewHub creates a new websocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        slog.Default().With("module", "ws"),
	}
}

// Run starts the hub's main loop. It returns when ctx is done via the caller
// closing the process; the loop itself runs forever.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.log.Info("client connected", slog.String("id", c.id), slog.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("client disconnected", slog.String("id", c.id), slog.Int("total", len(h.clients)))
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Send buffer full, drop the client.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// BroadcastTick serializes the tick's price points and sends them to every
// connected client.
func (h *Hub) BroadcastTick(tick int64, points []domain.PricePoint) {
	update := TickUpdate{Tick: tick, Prices: make([]PriceEntry, 0, len(points))}
	for _, pp := range points {
		update.Prices = append(update.Prices, PriceEntry{
			Asset:        pp.Asset.Name,
			Price:        pp.Price,
			DayAverage:   pp.DayAverage,
			WeekAverage:  pp.WeekAverage,
			MonthAverage: pp.MonthAverage,
		})
	}

	message, err := json.Marshal(update)
	if err != nil {
		h.log.Error("marshal tick update", slog.Any("error", err))
		return
	}
	h.broadcast <- message
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		id:   uuid.NewString(),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice disconnects and answer pings.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump pumps frames from the hub to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
