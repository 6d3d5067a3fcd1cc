// Package transport implements the two WebSocket upgrade endpoints of
// spec.md §6 (glasses and TPA) and the per-session wiring between them and
// the session/subscription/lifecycle/speech/display/mic components.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single outbound frame write so a stalled peer never
// blocks the goroutine driving it (spec.md §5: sends must never block
// session progression).
const writeTimeout = 5 * time.Second

// wsChannel wraps a coder/websocket connection to satisfy both
// sessionregistry.GlassesChannel and sessionregistry.AppChannel.
type wsChannel struct {
	conn *websocket.Conn

	mu sync.Mutex
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

// Send writes an opaque binary frame (audio).
func (c *wsChannel) Send(frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageBinary, frame)
}

// SendText marshals v to JSON and writes it as a text frame.
func (c *wsChannel) SendText(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close closes the underlying connection with a normal closure code.
func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closed")
}
