// Package transport is the websocket push connection to the server.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/debuglog"
)

var ErrClosed = errors.New("connection closed")

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

// Sender is the send half of a connection.
type Sender interface {
	SendObject(v any) error
}

// Handler receives connection events in arrival order from a single goroutine.
type Handler interface {
	OnConnectionOpen(s Sender)
	OnConnectionClose()
	OnConnectionError(err error)
	OnTransportMessage(data []byte)
}

type settings struct {
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	header           http.Header
}

type Option func(*settings)

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// WithWriteTimeout bounds each SendObject. Zero keeps DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithOrigin sets the Origin header some servers check during the handshake.
func WithOrigin(origin string) Option {
	return func(s *settings) {
		if origin != "" {
			s.header.Set("Origin", origin)
		}
	}
}

type Conn struct {
	ws       *websocket.Conn
	url      string
	settings settings

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens the websocket connection. The handshake is bounded by ctx and
// the handshake timeout.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	st := settings{
		handshakeTimeout: DefaultHandshakeTimeout,
		writeTimeout:     DefaultWriteTimeout,
		header:           http.Header{},
	}
	for _, opt := range opts {
		opt(&st)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: st.handshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, url, st.header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: status %d", url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	debuglog.Infof("connected to %s", url)

	return &Conn{
		ws:       ws,
		url:      url,
		settings: st,
		closed:   make(chan struct{}),
	}, nil
}

func (c *Conn) URL() string {
	return c.url
}

// SendObject writes v as one JSON text frame.
func (c *Conn) SendObject(v any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.settings.writeTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := c.ws.WriteJSON(v); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// Run delivers events to h until the connection ends or ctx is cancelled.
// It always finishes with OnConnectionClose.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	defer h.OnConnectionClose()
	defer c.Close()

	h.OnConnectionOpen(c)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				debuglog.Infof("server closed %s: %v", c.url, err)
				return nil
			}
			select {
			case <-c.closed:
				return nil
			default:
			}
			h.OnConnectionError(err)
			return errors.Wrap(err, "read frame")
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			h.OnTransportMessage(data)
		default:
			debuglog.Debugf("ignoring frame type %d", messageType)
		}
	}
}

// Close sends a close frame and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}
