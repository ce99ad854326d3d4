// Package stream broadcasts pose events to remote listeners over websockets
package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/swdee/go-posetree/pose"
)

const (
	// readTimeout drops listeners that stop answering pings
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 5 * time.Second
	// broadcastQueue is the number of messages queued for the hub before
	// new ones are dropped
	broadcastQueue = 16
)

// PoseMessage is the wire form of one slot of a pose event
type PoseMessage struct {
	Slot      int          `json:"slot"`
	ID        int64        `json:"id"`
	Landmarks [][3]float64 `json:"landmarks"`
	Center    [2]float64   `json:"center"`
	Alignment [3]float64   `json:"alignment"`
}

// Encode converts a pose event into its JSON wire form.  Absent slots are
// omitted.
func Encode(poses []*pose.Pose) ([]byte, error) {

	msgs := make([]PoseMessage, 0, len(poses))

	for slot, p := range poses {
		if p == nil {
			continue
		}

		m := PoseMessage{
			Slot:      slot,
			ID:        p.ID,
			Landmarks: make([][3]float64, len(p.Landmarks)),
			Center:    [2]float64{p.Center.X, p.Center.Y},
			Alignment: [3]float64{p.AlignmentVector.X, p.AlignmentVector.Y, p.AlignmentVector.Z},
		}

		for i, l := range p.Landmarks {
			m.Landmarks[i] = [3]float64{l.X, l.Y, l.Z}
		}

		msgs = append(msgs, m)
	}

	return json.Marshal(msgs)
}

// Hub fans messages out to every connected websocket listener
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *log.Logger
	upgrader   websocket.Upgrader
}

// NewHub returns a hub logging to logger, or the standard logger when nil
func NewHub(logger *log.Logger) *Hub {

	if logger == nil {
		logger = log.Default()
	}

	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) {

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Printf("Listener connected, total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Printf("Listener disconnected, total: %d", count)

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *Hub) send(message []byte) {

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))

		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Printf("Error sending message: %v", err)
			delete(h.clients, client)
			client.Close()
		}
	}
}

// Register adds a connection to the hub
func (h *Hub) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a connection from the hub and closes it
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for every listener.  Messages are dropped when
// the queue is full so a slow listener never stalls the caller.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.logger.Printf("Broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected listeners
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Attach broadcasts every event of kind published on bus and returns the
// function that detaches it
func (h *Hub) Attach(bus *pose.Bus, kind pose.Kind) func() {
	return bus.Subscribe(kind, func(poses []*pose.Pose) {

		msg, err := Encode(poses)

		if err != nil {
			h.logger.Printf("Error encoding %s event: %v", kind, err)
			return
		}

		h.Broadcast(msg)
	})
}

// ServeHTTP upgrades the request to a websocket and keeps the listener
// registered until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	conn, err := h.upgrader.Upgrade(w, r, nil)

	if err != nil {
		h.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	h.Register(conn)
	defer h.Unregister(conn)

	stop := make(chan struct{})
	defer close(stop)

	go h.ping(conn, stop)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) ping(conn *websocket.Conn, stop <-chan struct{}) {

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
