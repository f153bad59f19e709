package ws

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client is one websocket connection. It is the delivery sink for the
// session bound to it; gorilla connections allow one writer at a time, so
// every write goes through mu.
type client struct {
	conn    *websocket.Conn
	session string
	timeout time.Duration
	breaker *resilience.Breaker
	metrics *monitoring.Metrics
	log     *zap.Logger

	mu sync.Mutex
}

// Send forwards a record. Repeated write failures open the breaker and
// later records fail fast until the cooldown passes.
func (c *client) Send(ctx context.Context, rec pipeline.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.breaker.Do(func() error {
		return c.write(recordMessage(c.session, rec))
	})
}

func (c *client) write(msg ServerMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.WSMessage("out", msg.Type)
	return nil
}

// send writes a control message, logging instead of returning failures.
func (c *client) send(msg ServerMessage) {
	if err := c.write(msg); err != nil {
		c.log.Debug("WebSocket write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (c *client) sendError(message string) {
	msg := newMessage(TypeError, c.session)
	msg.Message = message
	c.send(msg)
}
