// Package gateway implements the Subscription Gateway: a duplex
// websocket channel that lets external clients subscribe to Progress
// Registry streams by operation id.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/depotrun/artifactcore/pkg/logging"
	"github.com/depotrun/artifactcore/pkg/progress"
)

const (
	heartbeatInterval = 30 * time.Second
	pongWait          = 2 * heartbeatInterval
	writeWait         = 10 * time.Second
)

// inMessage is one inbound message shape of spec.md §4.E.
type inMessage struct {
	Type        string `json:"type"`
	OperationID string `json:"operation_id,omitempty"`
}

// outMessage is one outbound message shape of spec.md §4.E.
type outMessage struct {
	Type        string          `json:"type"`
	OperationID string          `json:"operation_id,omitempty"`
	Snapshot    *progress.Snapshot `json:"snapshot,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Gateway upgrades HTTP connections to websockets and relays Progress
// Registry streams to them, grounded on the teacher's
// cmd/noisefs-webui/main.go handleWebSocket pattern (upgrader, a
// per-connection outbound channel drained by a writer goroutine, a
// reader loop that detects disconnect) — generalized here from a single
// broadcast topic to per-connection, per-operation-id subscription sets.
type Gateway struct {
	upgrader websocket.Upgrader
	registry *progress.Registry
	log      *logging.Logger
}

// NewGateway constructs a Gateway over registry.
func NewGateway(registry *progress.Registry) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		registry: registry,
		log:      logging.GetGlobalLogger().WithComponent("subscription_gateway"),
	}
}

// connection holds per-connection subscription state. Client identity is
// connection-scoped; on disconnect all subscriptions are released.
type connection struct {
	conn *websocket.Conn
	out  *outboundQueue

	mu   sync.Mutex
	subs map[string]*progress.Subscriber
}

// ServeHTTP upgrades the request and serves the duplex channel until the
// client disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	c := &connection{
		conn: wsConn,
		out:  newOutboundQueue(64),
		subs: make(map[string]*progress.Subscriber),
	}

	defer func() {
		c.mu.Lock()
		for opID, sub := range c.subs {
			g.registry.Unsubscribe(opID, sub)
		}
		c.mu.Unlock()
		c.out.close()
		wsConn.Close()
	}()

	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go g.writeLoop(c)
	go g.heartbeatLoop(c)

	g.readLoop(c)
}

func (g *Gateway) writeLoop(c *connection) {
	for range c.out.notify {
		for _, msg := range c.out.drain() {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) heartbeatLoop(c *connection) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

func (g *Gateway) readLoop(c *connection) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleInbound(c, data)
	}
}

func (g *Gateway) handleInbound(c *connection, data []byte) {
	var msg inMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		send(c, outMessage{Type: "error", Error: "malformed message"})
		return
	}

	switch msg.Type {
	case "subscribe":
		g.subscribe(c, msg.OperationID)
	case "unsubscribe":
		g.unsubscribe(c, msg.OperationID)
	case "ping":
		send(c, outMessage{Type: "pong"})
	default:
		send(c, outMessage{Type: "error", Error: "unknown message type"})
	}
}

func (g *Gateway) subscribe(c *connection, operationID string) {
	if operationID == "" {
		send(c, outMessage{Type: "error", Error: "operation_id required"})
		return
	}

	sub := g.registry.Subscribe(operationID)

	c.mu.Lock()
	c.subs[operationID] = sub
	c.mu.Unlock()

	send(c, outMessage{Type: "subscribed", OperationID: operationID})

	go func() {
		for snap := range sub.Stream() {
			s := snap
			switch s.Status {
			case progress.Completed:
				send(c, outMessage{Type: "complete", OperationID: operationID})
			case progress.Failed:
				send(c, outMessage{Type: "failed", OperationID: operationID, Error: s.Error})
			default:
				send(c, outMessage{Type: "progress", OperationID: operationID, Snapshot: &s})
			}
		}
	}()
}

func (g *Gateway) unsubscribe(c *connection, operationID string) {
	c.mu.Lock()
	sub, ok := c.subs[operationID]
	delete(c.subs, operationID)
	c.mu.Unlock()

	if ok {
		g.registry.Unsubscribe(operationID, sub)
	}
	send(c, outMessage{Type: "unsubscribed", OperationID: operationID})
}

func send(c *connection, msg outMessage) {
	c.out.push(msg)
}
