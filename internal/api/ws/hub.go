package ws

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is what subscribers receive.
type Message struct {
	Type      string `json:"type"`
	Line      string `json:"line,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	send chan []byte
}

// Hub fans the audit line stream out to WebSocket subscribers. It is an
// io.Writer, so it can be handed to the interception layer as its output.
// Slow subscribers lose lines rather than stall the writer.
type Hub struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}

	lineMu  sync.Mutex
	partial []byte
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Write broadcasts every complete line in p. A trailing partial line is
// held until the rest arrives.
func (h *Hub) Write(p []byte) (int, error) {
	h.lineMu.Lock()
	h.partial = append(h.partial, p...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, bytes.TrimRight(h.partial[:i], "\r"))
		h.partial = h.partial[i+1:]
	}
	if len(h.partial) == 0 {
		h.partial = nil
	}
	h.lineMu.Unlock()

	for _, line := range lines {
		h.Broadcast(Message{Type: "audit", Line: string(line), Timestamp: time.Now().Unix()})
	}
	return len(p), nil
}

// Broadcast sends msg to every subscriber.
func (h *Hub) Broadcast(msg Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode audit message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
			h.recordMessage("out", msg.Type)
		default:
			h.recordMessage("dropped", msg.Type)
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection upgrades the request and streams audit lines until the
// peer goes away. Peers may send {"type":"ping"} and get a pong back.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{send: make(chan []byte, sendBuffer)}
	h.register(cl)

	done := make(chan struct{})
	go h.writePump(conn, cl, done)
	defer func() {
		h.unregister(cl)
		<-done
		conn.Close()
	}()

	h.enqueue(cl, Message{Type: "system", Message: "connected to envtrace audit stream", Timestamp: time.Now().Unix()})

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		h.recordMessage("in", msg.Type)

		switch msg.Type {
		case "ping":
			h.enqueue(cl, Message{Type: "pong", Timestamp: time.Now().Unix()})
		default:
			h.enqueue(cl, Message{Type: "error", Message: "unknown message type", Timestamp: time.Now().Unix()})
		}
	}
}

// writePump owns all writes to conn. It exits when the client's channel is
// closed by unregister.
func (h *Hub) writePump(conn *websocket.Conn, cl *client, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// Unblock the read loop so the handler can unregister.
				conn.Close()
				drain(cl.send)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				drain(cl.send)
				return
			}
		}
	}
}

// drain consumes sends until unregister closes the channel.
func drain(ch <-chan []byte) {
	go func() {
		for range ch {
		}
	}()
}

func (h *Hub) enqueue(cl *client, msg Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	select {
	case cl.send <- data:
		h.recordMessage("out", msg.Type)
	default:
		h.recordMessage("dropped", msg.Type)
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

func (h *Hub) recordMessage(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}
