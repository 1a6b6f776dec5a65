package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"orderflow/internal/orders"
)

// OrderUpdate is the wire shape pushed to websocket subscribers whenever an
// order changes state.
type OrderUpdate struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Status     string  `json:"status"`
	Total      float64 `json:"total"`
}

// Hub fans order lifecycle updates out to connected websocket clients.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	Broadcast   chan []byte
	mu          sync.Mutex
	upgrader    websocket.Upgrader
	logf        func(format string, args ...any)
}

// NewHub constructs a Hub.
func NewHub(logf func(format string, args ...any)) *Hub {
	if logf == nil {
		logf = log.Printf
	}
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		Broadcast:   make(chan []byte, 64),
		logf:        logf,
	}
}

// Run processes register/unregister/broadcast events.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastOrder pushes an order event to every subscriber.
func (h *Hub) BroadcastOrder(ev orders.OrderEvent) {
	payload, err := json.Marshal(OrderUpdate{
		OrderID:    ev.OrderID,
		CustomerID: ev.CustomerID,
		Status:     string(ev.Status),
		Total:      ev.Total,
	})
	if err != nil {
		h.logf("realtime: marshal order update: %v", err)
		return
	}
	select {
	case h.Broadcast <- payload:
	default:
		h.logf("realtime: broadcast buffer full, dropping update for order %s", ev.OrderID)
	}
}

// ServeWS upgrades the request and subscribes the connection to updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("realtime: upgrade: %v", err)
		return
	}
	h.Register <- conn

	// Drain reads so we notice the peer closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Unregister <- conn
				return
			}
		}
	}()
}
