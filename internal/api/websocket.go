package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard
	},
}

// Hub maintains the set of active websocket clients and pushes engine
// events (per-transaction patterns, threat alerts) down to dashboards.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline prevents a blocked client from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	log.Printf("New WebSocket client connected. Total clients: %d", len(h.clients))

	// Read loop exists only to notice disconnects; the stream is push-only.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("WebSocket client disconnected. Total clients: %d", len(h.clients))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast sends JSON data to all connected clients
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}

// BroadcastThreatAlert adapts the hub into the alert dispatcher's broadcast
// callback, wrapping alerts in a typed envelope for the dashboard.
func BroadcastThreatAlert(hub *Hub) func(models.QuantumThreatAlert) {
	return func(alert models.QuantumThreatAlert) {
		payload := gin.H{
			"type":  "quantum_threat_alert",
			"alert": alert,
		}
		data, _ := json.Marshal(payload)
		hub.Broadcast(data)
		log.Printf("[ALERT] %s quantum sweep signature: %s (confidence %.2f, %d addresses)",
			alert.ThreatLevel, alert.AttackVector, alert.ConfidenceScore, len(alert.AffectedAddresses))
	}
}

// BroadcastPattern pushes one scored transaction pattern to the stream.
func BroadcastPattern(hub *Hub, pattern models.TransactionPattern) {
	payload := gin.H{
		"type":    "transaction_pattern",
		"pattern": pattern,
	}
	data, _ := json.Marshal(payload)
	hub.Broadcast(data)
}
