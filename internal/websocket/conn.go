package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio events

	// Time to wait for the peer to acknowledge a close frame.
	closeGracePeriod = 2 * time.Second

	sendBufferSize    = 256
	inboundBufferSize = 256
)

var (
	// ErrNotOpen is returned when sending on a connection that is not open.
	ErrNotOpen = errors.New("connection is not open")

	// ErrSendBufferFull is returned when the write pump cannot keep up.
	ErrSendBufferFull = errors.New("send buffer full")
)

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Conn is a client connection to the conversational agent stream.
// Inbound frames are delivered on Messages in arrival order; outbound
// messages are written by a single pump in the order Send was called.
type Conn struct {
	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Inbound frames, closed when the read pump exits.
	inbound chan []byte

	// Closed when a local close is requested.
	quit chan struct{}

	// Closed when the read pump exits.
	readDone chan struct{}

	// Closed when both pumps have exited.
	done chan struct{}

	closeOnce sync.Once

	mu         sync.Mutex
	open       bool
	localClose bool
	closeEvent repositories.CloseEvent

	logger *zap.Logger
}

var _ repositories.StreamConn = (*Conn)(nil)

// Dial opens a client connection and starts its pumps.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", redactQuery(url), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", redactQuery(url), err)
	}

	c := newConn(ws, logger)
	logger.Info("Stream connection opened", zap.String("url", redactQuery(url)))
	return c, nil
}

func newConn(ws *websocket.Conn, logger *zap.Logger) *Conn {
	c := &Conn{
		conn:     ws,
		send:     make(chan WriteData, sendBufferSize),
		inbound:  make(chan []byte, inboundBufferSize),
		quit:     make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
		open:     true,
		logger:   logger,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.readPump()
	}()
	go func() {
		wg.Wait()
		close(c.done)
	}()

	return c
}

// Messages implements repositories.StreamConn
func (c *Conn) Messages() <-chan []byte {
	return c.inbound
}

// Done implements repositories.StreamConn
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// CloseEvent implements repositories.StreamConn
func (c *Conn) CloseEvent() repositories.CloseEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeEvent
}

// IsOpen implements repositories.StreamConn
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Send implements repositories.StreamConn
func (c *Conn) Send(v interface{}) error {
	if !c.IsOpen() {
		return ErrNotOpen
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.quit:
		return ErrNotOpen
	default:
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close starts the close handshake. It does not wait for the peer; use
// Done to observe the end of the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		c.localClose = true
		c.mu.Unlock()
		close(c.quit)
	})
	return nil
}

// readPump pumps messages from the websocket connection to the inbound channel.
func (c *Conn) readPump() {
	defer func() {
		close(c.inbound)
		close(c.readDone)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unexpected message type", zap.Int("type", messageType))
			continue
		}

		select {
		case c.inbound <- message:
		case <-c.quit:
			// Frames arriving after a local close are dropped.
		}
	}
}

// writePump pumps messages from the send channel to the websocket connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			err := c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Debug("Failed to write close frame", zap.Error(err))
				return
			}
			select {
			case <-c.readDone:
			case <-time.After(closeGracePeriod):
				c.logger.Warn("Peer did not acknowledge close in time")
			}
			return

		case <-c.readDone:
			return
		}
	}
}

// finish records how the connection ended.
func (c *Conn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false

	// An abnormal closure carries the transport error text, never a peer reason
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure:
		c.closeEvent = repositories.CloseEvent{
			Code:     closeErr.Code,
			Reason:   closeErr.Text,
			WasClean: true,
		}
	case c.localClose:
		c.closeEvent = repositories.CloseEvent{
			Code:     websocket.CloseNormalClosure,
			WasClean: true,
		}
	default:
		c.closeEvent = repositories.CloseEvent{
			Code:     websocket.CloseAbnormalClosure,
			WasClean: false,
		}
	}

	if !c.closeEvent.WasClean {
		c.logger.Error("WebSocket error", zap.Error(err))
	}
	c.logger.Info("Stream connection closed",
		zap.Int("code", c.closeEvent.Code),
		zap.String("reason", c.closeEvent.Reason),
		zap.Bool("wasClean", c.closeEvent.WasClean))
}

// Dialer implements repositories.StreamDialer on top of Dial.
type Dialer struct {
	logger *zap.Logger
}

var _ repositories.StreamDialer = (*Dialer)(nil)

// NewDialer creates a new stream dialer
func NewDialer(logger *zap.Logger) *Dialer {
	return &Dialer{logger: logger}
}

// Dial implements repositories.StreamDialer
func (d *Dialer) Dial(ctx context.Context, url string) (repositories.StreamConn, error) {
	return Dial(ctx, url, d.logger)
}
