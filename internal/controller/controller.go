// Package controller binds the transport, the store, the request
// coordinator and the optional capture and search backends together. The
// view talks only to the Controller.
package controller

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/debuglog"
	"github.com/pders01/streamview/internal/filter"
	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/request"
	"github.com/pders01/streamview/internal/search"
	"github.com/pders01/streamview/internal/state"
	"github.com/pders01/streamview/internal/transport"
)

// Recorder receives every message that reaches the store.
type Recorder interface {
	SaveMessage(m *protocol.Message) error
}

type Controller struct {
	store    *state.Store
	coord    *request.Coordinator
	recorder Recorder
	searcher search.Searcher
	indexer  search.Indexer

	notifyMu sync.RWMutex
	notify   func()

	page    atomic.Int64
	dropped atomic.Int64

	errMu   sync.Mutex
	lastErr error
}

type settings struct {
	timeout  time.Duration
	recorder Recorder
	searcher search.Searcher
	notify   func()
}

type Option func(*settings)

// WithRequestTimeout bounds how long a request waits for its response.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithRecorder captures received messages, typically into a storage.Archive.
func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

// WithSearcher replaces the default buffer search. A searcher that also
// implements search.Indexer is fed every received message.
func WithSearcher(sr search.Searcher) Option {
	return func(s *settings) { s.searcher = sr }
}

func WithNotify(fn func()) Option {
	return func(s *settings) { s.notify = fn }
}

func New(store *state.Store, opts ...Option) *Controller {
	st := settings{timeout: request.DefaultTimeout}
	for _, opt := range opts {
		opt(&st)
	}

	c := &Controller{
		store:    store,
		recorder: st.recorder,
		searcher: st.searcher,
		notify:   st.notify,
	}
	if c.searcher == nil {
		c.searcher = search.NewEngine(store.Messages)
	}
	if ix, ok := c.searcher.(search.Indexer); ok {
		c.indexer = ix
	}
	c.coord = request.New(store,
		request.WithTimeout(st.timeout),
		request.WithOnSettled(func(o request.Outcome) {
			if o.TimedOut {
				debuglog.Debugf("request %s released by timeout", o.ID)
			}
			c.changed()
		}),
	)
	return c
}

// SetNotify installs the hook fired after every state change. It may be
// called from any goroutine, including the transport's read loop.
func (c *Controller) SetNotify(fn func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notify = fn
}

func (c *Controller) changed() {
	c.notifyMu.RLock()
	fn := c.notify
	c.notifyMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Controller) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.lastErr = err
}

// Transport events.

func (c *Controller) OnConnectionOpen(s transport.Sender) {
	c.store.OnConnectionOpen(s)
	c.setErr(nil)
	if err := s.SendObject(protocol.NewTopicsRequest()); err != nil {
		debuglog.Warnf("topics request failed: %v", err)
	}
	c.changed()
}

func (c *Controller) OnConnectionClose() {
	c.coord.Close()
	c.store.OnConnectionClose()
	c.changed()
}

func (c *Controller) OnConnectionError(err error) {
	c.store.OnConnectionError(err)
	c.setErr(err)
	c.changed()
}

func (c *Controller) OnTransportMessage(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		n := c.dropped.Add(1)
		debuglog.WithFields(map[string]interface{}{
			"dropped": n,
			"bytes":   len(data),
		}).Warnf("dropping frame: %v", err)
		return
	}

	switch env.Kind() {
	case protocol.KindResponse:
		if !c.coord.Complete(env.Response.RequestID) {
			debuglog.Debugf("response for %q matched no pending request", env.Response.RequestID)
		}
		return
	case protocol.KindMessage:
		c.capture(env.Message)
	}

	if err := c.store.OnTransportMessage(env); err != nil {
		c.dropped.Add(1)
		return
	}
	c.changed()
}

func (c *Controller) capture(m *protocol.Message) {
	if c.recorder != nil {
		if err := c.recorder.SaveMessage(m); err != nil {
			debuglog.Errorf("capture %s/%d: %v", m.Topic, m.Offset, err)
		}
	}
	if c.indexer != nil {
		if err := c.indexer.Index(m); err != nil {
			debuglog.Errorf("index %s/%d: %v", m.Topic, m.Offset, err)
		}
	}
}

// Intents.

func (c *Controller) SetTopic(topic string) {
	c.store.SetTopic(topic)
	c.changed()
}

func (c *Controller) SetPageSize(n int) error {
	if err := c.store.SetPageSize(n); err != nil {
		return err
	}
	c.changed()
	return nil
}

// SetPage narrows the next request to page p, counted back from the newest offset.
func (c *Controller) SetPage(p int) error {
	if err := c.store.SetPage(p); err != nil {
		return err
	}
	c.page.Store(int64(p))
	c.changed()
	return nil
}

// Page returns the page last set with SetPage.
func (c *Controller) Page() int {
	return int(c.page.Load())
}

// AddFilter rejects filters the server could not evaluate before they reach the store.
func (c *Controller) AddFilter(f state.UIFilter) error {
	if f.Parameter == "" {
		return errors.Wrap(filter.ErrInvalidExpression, "missing parameter")
	}
	if _, err := filter.Code(f.Operator); err != nil {
		return err
	}
	c.store.AddFilter(f)
	c.changed()
	return nil
}

// AddFilterExpr parses "parameter <op> value" and adds the result.
func (c *Controller) AddFilterExpr(expr string) (state.UIFilter, error) {
	f, err := filter.Parse(expr)
	if err != nil {
		return state.UIFilter{}, err
	}
	return f, c.AddFilter(f)
}

func (c *Controller) RemoveFilter(f state.UIFilter) bool {
	removed := c.store.RemoveFilter(f)
	if removed {
		c.changed()
	}
	return removed
}

// Request starts a fetch with the current topic, filters and page size.
func (c *Controller) Request() (string, error) {
	id, err := c.coord.Request()
	if err != nil {
		return "", err
	}
	c.changed()
	return id, nil
}

// Search runs query against the configured searcher.
func (c *Controller) Search(query string, limit int) ([]*search.Result, error) {
	return c.searcher.Search(query, limit)
}

// Searcher returns the searcher behind Search.
func (c *Controller) Searcher() search.Searcher {
	return c.searcher
}

// Close releases any pending request.
func (c *Controller) Close() {
	c.coord.Close()
}

// Accessors.

func (c *Controller) Snapshot() state.ApplicationState { return c.store.Snapshot() }
func (c *Controller) Messages() []protocol.Message     { return c.store.Messages() }
func (c *Controller) Topics() []string                 { return c.store.Topics() }
func (c *Controller) Topic() string                    { return c.store.Topic() }
func (c *Controller) Filters() []state.UIFilter        { return c.store.Filters() }
func (c *Controller) IsConnected() bool                { return c.store.IsConnected() }
func (c *Controller) IsRequesting() bool               { return c.store.IsRequesting() }
func (c *Controller) PageSize() int                    { return c.store.PageSize() }
func (c *Controller) TotalSize() int                   { return c.store.TotalSize() }
func (c *Controller) TotalPages() int                  { return c.store.TotalPages() }

// Pending returns the id of the outstanding request, or "".
func (c *Controller) Pending() string { return c.coord.Pending() }

// Dropped counts frames that could not be applied.
func (c *Controller) Dropped() int64 { return c.dropped.Load() }

// LastError returns the most recent transport error since the last open.
func (c *Controller) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}
