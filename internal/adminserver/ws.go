package adminserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/events"
	"github.com/tm2pc/txmanager/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TransitionMessage is one order-lifecycle event forwarded to websocket
// subscribers, shaped after the events.Event the bridge publishes.
type TransitionMessage struct {
	Type      string                 `json:"type"`
	Toid      tm2pc.Toid             `json:"toid"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// Hub fans out order-transition events to every connected operator. Unlike
// the teacher's room-based chat hub, there is exactly one broadcast stream
// here: operators watch the whole order population, not a subscribed
// subset, so there is no join_room/leave_room protocol to reproduce.
type Hub struct {
	clients   map[*client]bool
	broadcast chan TransitionMessage
	register  chan *client
	unregis   chan *client
	logger    logger.Logger
	mu        sync.RWMutex
}

type client struct {
	conn *websocket.Conn
	send chan TransitionMessage
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:   make(map[*client]bool),
		broadcast: make(chan TransitionMessage, 256),
		register:  make(chan *client),
		unregis:   make(chan *client),
		logger:    log,
	}
}

// Run drives the hub's registration/broadcast loop; call it in its own
// goroutine for the lifetime of the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregis:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					if h.logger != nil {
						h.logger.Warn("adminserver: dropping websocket message, client send buffer full")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast is called from an events.EventHandler subscribed to the order
// lifecycle topics in pkg/events; SubscribeTransitions wires this.
func (h *Hub) Broadcast(msg TransitionMessage) {
	select {
	case h.broadcast <- msg:
	default:
		if h.logger != nil {
			h.logger.Warn("adminserver: websocket broadcast queue full, dropping transition", "toid", msg.Toid)
		}
	}
}

// SubscribeTransitions wires the hub onto the same event bus the tm2pc
// transitionPublisher seam publishes to, so a websocket client sees the
// same lifecycle events the Prometheus/audit subscribers do.
func SubscribeTransitions(bus events.EventBus, hub *Hub) error {
	transitionTypes := []string{
		events.OrderOpened,
		events.OrderPreparing,
		events.OrderCommitting,
		events.OrderCompensating,
		events.OrderDone,
		events.OrderAborted,
		events.OrderBlocking,
	}
	for _, t := range transitionTypes {
		eventType := t
		err := bus.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			transitionToid, _ := e.Payload["toid"].(tm2pc.Toid)
			hub.Broadcast(TransitionMessage{
				Type:      e.Type,
				Toid:      transitionToid,
				Payload:   e.Payload,
				Timestamp: e.Timestamp,
			})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// it with the hub. Authenticated separately from the JWT/Casbin chain via
// a query-string token, since browsers cannot set Authorization headers on
// the initial websocket handshake.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan TransitionMessage, 32)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
	return nil
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregis <- c
		c.conn.Close()
	}()
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
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
