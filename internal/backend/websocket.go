package backend

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/message"
)

// clientBufferSize bounds each connected client's outbound backlog; once
// full, the oldest queued value is dropped rather than blocking Send,
// matching the drop-oldest overflow policy used by the shared event queue.
const clientBufferSize = 64

// valueEnvelope is the wire shape one WebSocket client receives per value.
type valueEnvelope struct {
	Kind      string  `json:"kind"`
	Index     int     `json:"index"`
	Timestamp uint64  `json:"timestamp"`
	Digital   bool    `json:"digital,omitempty"`
	Analog    int32   `json:"analog,omitempty"`
	Value     float32 `json:"value,omitempty"`
}

func encode(v message.Value) valueEnvelope {
	env := valueEnvelope{Index: v.Index(), Timestamp: v.Time()}
	switch v.ValueKind {
	case message.ValueDigital:
		env.Kind = "digital"
		env.Digital = v.Digital
	case message.ValueAnalog:
		env.Kind = "analog"
		env.Analog = v.Analog
	default:
		env.Kind = "continuous"
		env.Value = v.Continuous
	}
	return env
}

// wsClient is one connected consumer. outbound is drained by a single
// writer goroutine per client so gorilla/websocket's no-concurrent-writes
// rule is never at risk.
type wsClient struct {
	conn     *websocket.Conn
	outbound chan valueEnvelope
	closeMu  sync.Once
	done     chan struct{}
}

// WebsocketOutputBackend implements OutputBackend by broadcasting every
// value to all currently connected gorilla/websocket clients as small JSON
// envelopes. It is the reference sink feeding a browser- or DAW-side OSC
// bridge; the OSC codec itself is out of scope here.
type WebsocketOutputBackend struct {
	logger   logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func NewWebsocketOutputBackend(logger logging.Logger) *WebsocketOutputBackend {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &WebsocketOutputBackend{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades one HTTP connection to a WebSocket client and starts
// forwarding values to it until the socket closes.
func (b *WebsocketOutputBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	client := &wsClient{conn: conn, outbound: make(chan valueEnvelope, clientBufferSize), done: make(chan struct{})}

	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()

	go b.writeLoop(client)
	go b.readLoop(client)
}

// readLoop exists only to notice client disconnects; the value channel is
// one-directional, so any inbound frame (including a close) just triggers
// cleanup.
func (b *WebsocketOutputBackend) readLoop(c *wsClient) {
	defer b.removeClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *WebsocketOutputBackend) writeLoop(c *wsClient) {
	for {
		select {
		case env, ok := <-c.outbound:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.removeClient(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (b *WebsocketOutputBackend) removeClient(c *wsClient) {
	c.closeMu.Do(func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

// Send broadcasts v to every connected client without blocking: a client
// whose outbound buffer is full has its oldest queued value dropped to
// make room, per the non-blocking-from-the-processor's-perspective
// contract.
func (b *WebsocketOutputBackend) Send(v message.Value) {
	env := encode(v)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.outbound <- env:
		default:
			select {
			case <-c.outbound:
			default:
			}
			select {
			case c.outbound <- env:
			default:
			}
		}
	}
}

// ClientCount reports the number of currently connected clients, for
// health/diagnostic reporting.
func (b *WebsocketOutputBackend) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
