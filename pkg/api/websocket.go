package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zshan-dev/agent-arena/pkg/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage covers every client → server frame on /ws/tests.
type clientMessage struct {
	Type   string `json:"type"`
	TestID string `json:"testId,omitempty"`
}

// wsConn is one dashboard connection. All writes go through the outbound
// channel and a single writer goroutine, which preserves per-testId event
// order on the wire.
type wsConn struct {
	conn     *websocket.Conn
	bus      *events.Bus
	outbound chan any

	mu   sync.Mutex
	subs map[string]*events.Subscription
	done chan struct{}
}

// handleWS upgrades the connection and serves it until it closes.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &wsConn{
		conn:     conn,
		bus:      s.bus,
		outbound: make(chan any, 64),
		subs:     make(map[string]*events.Subscription),
		done:     make(chan struct{}),
	}

	go client.writeLoop()
	client.readLoop()
}

// readLoop handles subscribe/unsubscribe/ping until the socket closes,
// then releases every subscription so no handlers leak.
func (w *wsConn) readLoop() {
	defer w.teardown()

	for {
		var msg clientMessage
		if err := w.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			if msg.TestID == "" {
				w.send(map[string]string{"type": "error", "message": "subscribe requires testId"})
				continue
			}
			w.subscribe(msg.TestID)
			w.send(map[string]string{"type": "subscribed", "testId": msg.TestID})
		case "unsubscribe":
			w.unsubscribe(msg.TestID)
		case "ping":
			w.send(map[string]string{"type": "pong"})
		default:
			w.send(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

func (w *wsConn) subscribe(testID string) {
	w.mu.Lock()
	if _, exists := w.subs[testID]; exists {
		w.mu.Unlock()
		return
	}
	sub := w.bus.Subscribe(testID)
	w.subs[testID] = sub
	w.mu.Unlock()

	// One pump per subject: events for a testId flow FIFO into the shared
	// outbound channel, so per-subject order survives the fan-in.
	go func() {
		for ev := range sub.Events() {
			select {
			case w.outbound <- ev:
			case <-w.done:
				return
			}
		}
	}()
}

func (w *wsConn) unsubscribe(testID string) {
	w.mu.Lock()
	sub, ok := w.subs[testID]
	if ok {
		delete(w.subs, testID)
	}
	w.mu.Unlock()
	if ok {
		w.bus.Unsubscribe(sub)
	}
}

// send queues a control frame, dropping it if the connection is backed up.
func (w *wsConn) send(v any) {
	select {
	case w.outbound <- v:
	case <-w.done:
	default:
	}
}

// writeLoop is the single writer for the socket.
func (w *wsConn) writeLoop() {
	for {
		select {
		case <-w.done:
			return
		case v := <-w.outbound:
			if err := w.conn.WriteJSON(v); err != nil {
				slog.Debug("WebSocket write failed", "error", err)
				return
			}
		}
	}
}

func (w *wsConn) teardown() {
	close(w.done)
	w.mu.Lock()
	subs := make([]*events.Subscription, 0, len(w.subs))
	for _, sub := range w.subs {
		subs = append(subs, sub)
	}
	w.subs = make(map[string]*events.Subscription)
	w.mu.Unlock()
	for _, sub := range subs {
		w.bus.Unsubscribe(sub)
	}
	_ = w.conn.Close()
}
