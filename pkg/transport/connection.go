// Package transport wraps a coder/websocket connection with the read/write
// pump pair the realtime core expects: inbound frames are delivered to a
// message handler one at a time, outbound sends go through a buffered channel
// and never block the caller.
package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageHandler receives each inbound frame. Invocations for one connection
// never overlap; the read pump is the only caller.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

// CloseHandler runs exactly once when the connection terminates.
type CloseHandler func(connID uuid.UUID, err error)

type Config struct {
	// ReadTimeout bounds the wait for the next inbound frame; an idle
	// connection past this deadline is closed.
	ReadTimeout time.Duration
	// SendBuffer is the outbound channel capacity. Zero means 256.
	SendBuffer int
}

// Connection is a single live WebSocket session. Safe for concurrent use.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config Config
	send   chan []byte

	onMessage MessageHandler
	onClose   CloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config Config, logger *slog.Logger) *Connection {
	id := uuid.New()
	ctx, cancel := context.WithCancel(parentCtx)
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	// The Add is balanced by the wg.Done in Close, which may legitimately
	// run before Run (an upgrade-time authentication failure closes the
	// connection before the pumps ever start).
	wg.Add(1)
	return &Connection{
		id:     id,
		conn:   conn,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		wg:     wg,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("connID", id.String())),
	}
}

// Run starts the pump goroutines. Handlers must be set before Run; messages
// queued with Send beforehand are delivered once the write pump starts.
func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()
	c.logger.Debug("Transport connection running")
}

func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			cancelRead()
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		msg, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, msg)
		}
	}
}

func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	// send is never closed; shutdown is signalled through ctx so a late
	// Send can never panic on a closed channel.
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, msg); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "shutting down")
			return
		}
	}
}

// Send queues a message for delivery. Best-effort: a message to a closing
// connection is dropped.
func (c *Connection) Send(msg []byte) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
		c.logger.Debug("Dropped send to closed connection")
	}
}

// Close tears the connection down exactly once and fires the close handler.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("Transport connection closing", slog.Any("reason", err))
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "")
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done is closed once the connection has fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessage(h MessageHandler) {
	c.onMessage = h
}

func (c *Connection) SetOnClose(h CloseHandler) {
	c.onClose = h
}
