package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/consensus"
	"github.com/fortiblox/X1-Pulse/pkg/poller"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	sendBuffer      = 16
	broadcastBuffer = 64
)

// EventCycle is the type of the event pushed after every poll cycle.
const EventCycle = "cycle"

// Event is a message pushed to websocket clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// CycleEvent summarizes a poll cycle for live clients.
type CycleEvent struct {
	Started      float64             `json:"started"`
	DurationMs   int64               `json:"duration_ms"`
	Stored       int                 `json:"stored"`
	Dropped      int                 `json:"dropped"`
	Failed       int                 `json:"failed"`
	Observations []types.Observation `json:"observations"`
	Stats        consensus.Stats     `json:"stats"`
}

// NewCycleEvent builds the event for result. Stats are computed over the
// observations stored in that cycle, one per responsive endpoint.
func NewCycleEvent(result poller.CycleResult) Event {
	observations := make([]types.Observation, len(result.Observations))
	for i, obs := range result.Observations {
		observations[i] = obs.Public()
	}

	return Event{
		Type: EventCycle,
		Data: CycleEvent{
			Started:      float64(result.Started.UnixNano()) / float64(time.Second),
			DurationMs:   result.Duration.Milliseconds(),
			Stored:       result.Stored,
			Dropped:      result.Dropped,
			Failed:       result.Failed,
			Observations: observations,
			Stats:        consensus.Analyze(result.Observations),
		},
	}
}

// OnCycle pushes a cycle event to every websocket client. It is meant to be
// registered with poller.WithOnCycle and never blocks.
func (d *Dashboard) OnCycle(result poller.CycleResult) {
	d.hub.Broadcast(NewCycleEvent(result))
}

// client is one websocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks websocket clients and fans events out to them.
//
// Run owns the client set; everything else talks to it over channels.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	done       chan struct{}

	running   atomic.Bool
	connected atomic.Int64
	upgrader  websocket.Upgrader
	log       *slog.Logger
}

// NewHub creates a hub. Run must be running for clients to connect.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Event, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Run serves the hub until ctx is done, then closes every client. A hub
// runs at most once.
func (h *Hub) Run(ctx context.Context) {
	if h.running.Swap(true) {
		return
	}
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Add(1)
			h.log.Debug("websocket client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.log.Debug("websocket client disconnected", "clients", len(h.clients))
			}

		case event := <-h.broadcast:
			if len(h.clients) == 0 {
				continue
			}
			message, err := json.Marshal(event)
			if err != nil {
				h.log.Error("failed to encode websocket event", "type", event.Type, "error", err)
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					h.log.Warn("dropping slow websocket client")
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.connected.Add(-1)
}

// Broadcast queues event for every client. The event is dropped when the
// hub is backed up.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("websocket hub backed up, dropping event", "type", event.Type)
	}
}

// HandleWS upgrades the request and registers the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards client messages and handles pongs until the connection
// fails.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards queued messages and keeps the connection alive with
// pings.
func (c *client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
