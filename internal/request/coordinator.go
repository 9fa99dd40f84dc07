// Package request runs fetch cycles against the server: it builds the
// messages request from the store, guards against overlapping requests and
// releases the guard on an explicit response or, failing that, on timeout.
package request

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/debuglog"
	"github.com/pders01/streamview/internal/filter"
	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/state"
)

// DefaultTimeout bounds how long a request holds the guard without a response.
const DefaultTimeout = 2 * time.Second

var (
	ErrInFlight     = errors.New("a request is already in flight")
	ErrNotConnected = errors.New("not connected")
)

// Outcome describes how a request was released.
type Outcome struct {
	ID       string
	TimedOut bool
	Elapsed  time.Duration
}

type Coordinator struct {
	store     *state.Store
	timeout   time.Duration
	onSettled func(Outcome)
	newID     func() string

	mu      sync.Mutex
	pending string
	started time.Time
	timer   *time.Timer
}

type Option func(*Coordinator)

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOnSettled registers a hook called once per request when it is released.
// It runs on the goroutine that released the request.
func WithOnSettled(fn func(Outcome)) Option {
	return func(c *Coordinator) {
		c.onSettled = fn
	}
}

func New(store *state.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		timeout: DefaultTimeout,
		newID:   func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build returns the payload a request would send right now.
func (c *Coordinator) Build() (protocol.MessageRequest, error) {
	filters, err := filter.TranslateAll(c.store.Filters())
	if err != nil {
		return protocol.MessageRequest{}, err
	}
	filters = append(filters, protocol.WireFilter{
		Parameter: protocol.ParamTopic,
		Operator:  protocol.OpEq,
		Value:     c.store.Topic(),
	})
	return protocol.MessageRequest{
		Request: protocol.RequestMessages,
		Filters: filters,
		Size:    c.store.PageSize(),
	}, nil
}

// Request starts a fetch cycle and returns its id. The buffer is cleared
// before sending since the response replaces it. A failed send puts the
// buffer back. The lock is not held while the payload is written.
func (c *Coordinator) Request() (string, error) {
	c.mu.Lock()
	if c.pending != "" || c.store.IsRequesting() {
		c.mu.Unlock()
		return "", ErrInFlight
	}
	sender := c.store.Sender()
	if sender == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}

	payload, err := c.Build()
	if err != nil {
		c.mu.Unlock()
		return "", errors.Wrap(err, "build request")
	}
	id := c.newID()
	payload.RequestID = id

	c.pending = id
	c.started = time.Now()
	c.store.SetRequesting(true)
	previous := c.store.TakeMessages()
	c.mu.Unlock()

	if err := sender.SendObject(payload); err != nil {
		c.mu.Lock()
		if c.pending == id {
			c.pending = ""
			c.store.SetRequesting(false)
		}
		c.store.RestoreMessages(previous)
		c.mu.Unlock()
		return "", errors.Wrap(err, "send request")
	}

	c.mu.Lock()
	// A response or Close may already have settled the request.
	if c.pending == id {
		c.timer = time.AfterFunc(c.timeout, func() {
			if c.settle(id, true) {
				debuglog.Warnf("request %s released after %s without a response", id, c.timeout)
			}
		})
	}
	c.mu.Unlock()

	debuglog.WithFields(map[string]interface{}{
		"request_id": id,
		"filters":    len(payload.Filters),
		"size":       payload.Size,
	}).Debugf("request sent")
	return id, nil
}

// Complete releases the request with the given id. An empty id completes
// whatever request is outstanding, for servers that do not echo ids.
func (c *Coordinator) Complete(id string) bool {
	return c.settle(id, false)
}

// Pending returns the id of the outstanding request, or "".
func (c *Coordinator) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Close stops the release timer of an outstanding request and releases it.
func (c *Coordinator) Close() {
	c.mu.Lock()
	id := c.pending
	c.mu.Unlock()
	if id != "" {
		c.settle(id, false)
	}
}

func (c *Coordinator) settle(id string, timedOut bool) bool {
	c.mu.Lock()
	if c.pending == "" || (id != "" && id != c.pending) {
		c.mu.Unlock()
		return false
	}
	out := Outcome{ID: c.pending, TimedOut: timedOut, Elapsed: time.Since(c.started)}
	c.pending = ""
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.store.SetRequesting(false)
	hook := c.onSettled
	c.mu.Unlock()

	debuglog.Debugf("request %s settled in %s (timed out: %v)", out.ID, out.Elapsed.Round(time.Millisecond), timedOut)
	if hook != nil {
		hook(out)
	}
	return true
}
