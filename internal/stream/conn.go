// Package stream owns the websocket event stream of a game: the connection
// and the processor that applies its messages to the table.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	closeWait      = 2 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// DefaultHandshakeTimeout bounds the websocket upgrade.
const DefaultHandshakeTimeout = 15 * time.Second

var (
	ErrNotConnected  = errors.New("stream not connected")
	ErrBufferFull    = errors.New("stream send buffer full")
	ErrAlreadyDialed = errors.New("stream already dialed")
)

// State is the lifecycle of a connection.
type State int32

const (
	Idle State = iota
	Connecting
	Open
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Listener receives connection events. StreamMessage is called from the read
// goroutine, in receipt order.
type Listener interface {
	StreamOpened(gameID string)
	StreamMessage(raw []byte)
	StreamFailed(gameID string, err error)
}

// Conn is a single websocket connection for one game. A Conn is dialed at
// most once; reconnecting means creating a new Conn.
type Conn struct {
	url      string
	gameID   string
	listener Listener
	dialer   *websocket.Dialer
	header   http.Header
	logger   *log.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	err   error

	send     chan []byte
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) ConnOption {
	return func(c *Conn) {
		c.dialer.HandshakeTimeout = d
	}
}

// WithHeader adds headers to the upgrade request.
func WithHeader(h http.Header) ConnOption {
	return func(c *Conn) {
		c.header = h.Clone()
	}
}

// NewConn prepares a connection to url for gameID. Nothing is dialed until
// Dial is called.
func NewConn(url, gameID string, listener Listener, logger *log.Logger, opts ...ConnOption) *Conn {
	c := &Conn{
		url:      url,
		gameID:   gameID,
		listener: listener,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		logger: logger.WithPrefix("stream"),
		send:   make(chan []byte, sendBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the connection to Failed.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once the connection has stopped reading, whether it was
// closed or failed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Dial opens the websocket and starts the pumps.
func (c *Conn) Dial(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyDialed
	}
	c.state = Connecting
	c.mu.Unlock()

	c.logger.Info("Connecting to event stream", "url", c.url, "game", c.gameID)

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.url, err)
		c.mu.Lock()
		if c.state == Connecting {
			c.state = Failed
			c.err = err
		}
		c.mu.Unlock()
		close(c.done)
		return err
	}

	c.mu.Lock()
	if c.state != Connecting {
		// Closed while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		close(c.done)
		return ErrNotConnected
	}
	c.conn = conn
	c.state = Open
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()

	c.logger.Info("Event stream open", "game", c.gameID)
	c.listener.StreamOpened(c.gameID)
	return nil
}

// SendFrame queues an opaque text frame for the server.
func (c *Conn) SendFrame(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open {
		return ErrNotConnected
	}
	select {
	case c.send <- []byte(frame):
		return nil
	default:
		return ErrBufferFull
	}
}

// Close sends a normal closure and waits briefly for the server to answer.
// Closing an idle, closed or failed connection is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	prev := c.state
	if prev != Open && prev != Connecting {
		c.mu.Unlock()
		return nil
	}
	c.state = Closed
	conn := c.conn
	c.mu.Unlock()

	c.stopWriter()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("Failed to send close frame", "error", err)
	}

	select {
	case <-c.done:
	case <-time.After(closeWait):
		c.logger.Debug("Server did not acknowledge close", "game", c.gameID)
	}

	c.logger.Info("Event stream closed", "game", c.gameID)
	return conn.Close()
}

func (c *Conn) stopWriter() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *Conn) readPump() {
	defer close(c.done)
	defer c.stopWriter()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}
		if kind != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", "type", kind)
			continue
		}
		c.listener.StreamMessage(data)
	}
}

func (c *Conn) readFailed(err error) {
	c.mu.Lock()
	if c.state != Open {
		c.mu.Unlock()
		return
	}
	c.state = Failed
	c.err = err
	c.mu.Unlock()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Error("Event stream error", "game", c.gameID, "error", err)
	} else {
		c.logger.Warn("Event stream closed by server", "game", c.gameID, "error", err)
	}
	_ = c.conn.Close()
	c.listener.StreamFailed(c.gameID, err)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error("Failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			return
		}
	}
}
