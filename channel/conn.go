package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ethereum-optimism/infra/op-suiterelay/metrics"
	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
)

// Conn is one upgraded agent connection. Writes are serialized; reads
// happen on the connection's own read pump.
type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration
	log          log.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ protocol.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, writeTimeout time.Duration, logger log.Logger) *Conn {
	id := uuid.New().String()
	return &Conn{
		id:           id,
		ws:           ws,
		writeTimeout: writeTimeout,
		log:          logger.New("conn", id, "remote", ws.RemoteAddr().String()),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Send writes one text frame to the agent
func (c *Conn) Send(msg []byte) error {
	if err := c.write(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to write to agent: %w", err)
	}
	metrics.RecordChannelMessage("outbound", eventOf(msg))
	return nil
}

func (c *Conn) write(msgType int, msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.log.Error("ws write timeout", "err", err)
		return err
	}
	return c.ws.WriteMessage(msgType, msg)
}

// closeWith sends a close frame with the given code before closing the socket
func (c *Conn) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		if err := c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, text)); err != nil {
			c.log.Debug("error writing close message", "err", err)
		}
		c.ws.Close()
	})
}

// Close closes the connection with a normal closure
func (c *Conn) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

func formatWSError(err error) (int, string) {
	if e, ok := err.(*websocket.CloseError); ok && e.Code != websocket.CloseNoStatusReceived {
		return e.Code, e.Text
	}
	return websocket.CloseNormalClosure, fmt.Sprintf("%v", err)
}
