package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-wager/internal/obslog"
)

const (
	sendBuffer   = 256
	writeTimeout = 5 * time.Second
	readLimit    = 16 << 10
)

type client struct {
	id string
	ws *websocket.Conn

	out       chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, ws *websocket.Conn) *client {
	ws.SetReadLimit(readLimit)
	return &client{id: id, ws: ws, out: make(chan Envelope, sendBuffer), done: make(chan struct{})}
}

// enqueue never blocks; a client that cannot keep up is dropped.
func (c *client) enqueue(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- env:
		return true
	default:
		obslog.L().Warn("ws_send_overflow", zap.String("conn", c.id), zap.String("event", env.Event))
		c.close(websocket.StatusPolicyViolation, "send buffer full")
		return false
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close(code, reason)
	})
}

func (c *client) writeLoop(ctx context.Context, pingInterval time.Duration) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case env := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, env)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn", c.id), zap.Error(err))
				c.close(websocket.StatusGoingAway, "write failure")
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					c.close(websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			failures = 0
		}
	}
}
