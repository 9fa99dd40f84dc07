package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/streamview/internal/filter"
	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/request"
	"github.com/pders01/streamview/internal/search"
	"github.com/pders01/streamview/internal/state"
	"github.com/pders01/streamview/internal/transport"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []any
}

func (f *fakeSender) SendObject(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeSender) all() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

type fakeRecorder struct {
	mu    sync.Mutex
	saved []protocol.Message
}

func (r *fakeRecorder) SaveMessage(m *protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, *m)
	return nil
}

type fakeIndex struct {
	indexed int
}

func (f *fakeIndex) Index(*protocol.Message) error {
	f.indexed++
	return nil
}

func (f *fakeIndex) Search(string, int) ([]*search.Result, error) {
	return []*search.Result{{Topic: "from-index"}}, nil
}

func TestOpenPrimesTopics(t *testing.T) {
	var notified atomic.Int32
	c := New(state.New(), WithNotify(func() { notified.Add(1) }))
	sender := &fakeSender{}

	c.OnConnectionOpen(sender)

	assert.True(t, c.IsConnected())
	assert.Equal(t, []any{protocol.NewTopicsRequest()}, sender.all())
	assert.Equal(t, int32(1), notified.Load())

	c.OnConnectionClose()
	assert.False(t, c.IsConnected())
}

func TestTransportMessagesUpdateStore(t *testing.T) {
	rec := &fakeRecorder{}
	idx := &fakeIndex{}
	c := New(state.New(), WithRecorder(rec), WithSearcher(idx))
	c.OnConnectionOpen(&fakeSender{})

	c.OnTransportMessage([]byte(`{"topic":{"topic":"orders"}}`))
	c.OnTransportMessage([]byte(`{"topic":{"topic":"orders"}}`))
	c.OnTransportMessage([]byte(`{"message":{"topic":"orders","offset":"41","value":"a"}}`))
	c.OnTransportMessage([]byte(`{"message":{"topic":"orders","offset":"42","value":"b"}}`))

	assert.Equal(t, []string{"all", "orders"}, c.Topics())
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 42, msgs[0].Offset)
	assert.Equal(t, 42, c.TotalSize())

	assert.Len(t, rec.saved, 2)
	assert.Equal(t, 2, idx.indexed)
	assert.Zero(t, c.Dropped())

	res, err := c.Search("anything", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "from-index", res[0].Topic)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	var notified atomic.Int32
	c := New(state.New(), WithNotify(func() { notified.Add(1) }))

	for _, frame := range []string{``, `not json`, `{"other":1}`, `{"message":{"value":"no offset"}}`} {
		c.OnTransportMessage([]byte(frame))
	}

	assert.Equal(t, int64(4), c.Dropped())
	assert.Empty(t, c.Messages())
	assert.Equal(t, []string{"all"}, c.Topics())
	assert.Zero(t, notified.Load())
}

func TestResponseCompletesRequest(t *testing.T) {
	c := New(state.New(), WithRequestTimeout(time.Hour))
	defer c.Close()
	sender := &fakeSender{}
	c.OnConnectionOpen(sender)

	id, err := c.Request()
	require.NoError(t, err)
	assert.True(t, c.IsRequesting())
	assert.Equal(t, id, c.Pending())

	sent := sender.all()
	require.Len(t, sent, 2)
	req, ok := sent[1].(protocol.MessageRequest)
	require.True(t, ok)
	assert.Equal(t, id, req.RequestID)

	_, err = c.Request()
	assert.True(t, errors.Is(err, request.ErrInFlight))

	frame, err := json.Marshal(map[string]any{"response": map[string]any{"request_id": id, "count": 0}})
	require.NoError(t, err)
	c.OnTransportMessage(frame)

	assert.False(t, c.IsRequesting())
	assert.Empty(t, c.Pending())
	assert.Zero(t, c.Dropped())
}

func TestCloseReleasesPendingRequest(t *testing.T) {
	c := New(state.New(), WithRequestTimeout(time.Hour))
	c.OnConnectionOpen(&fakeSender{})

	_, err := c.Request()
	require.NoError(t, err)

	c.OnConnectionClose()
	assert.False(t, c.IsRequesting())
	assert.Empty(t, c.Pending())
}

func TestConnectionErrorIsKept(t *testing.T) {
	c := New(state.New())
	c.OnConnectionError(errors.New("reset by peer"))
	require.Error(t, c.LastError())
	assert.Contains(t, c.LastError().Error(), "reset by peer")

	c.OnConnectionOpen(&fakeSender{})
	assert.NoError(t, c.LastError())
}

func TestFilterIntents(t *testing.T) {
	c := New(state.New())

	f, err := c.AddFilterExpr("partition >= 2")
	require.NoError(t, err)
	assert.Equal(t, state.UIFilter{Parameter: "partition", Operator: ">=", Value: "2"}, f)

	err = c.AddFilter(state.UIFilter{Parameter: "x", Operator: "!=", Value: "1"})
	assert.True(t, errors.Is(err, filter.ErrUnknownOperator))

	err = c.AddFilter(state.UIFilter{Operator: "=", Value: "1"})
	assert.True(t, errors.Is(err, filter.ErrInvalidExpression))

	_, err = c.AddFilterExpr("garbage")
	assert.True(t, errors.Is(err, filter.ErrInvalidExpression))

	assert.Equal(t, []state.UIFilter{f}, c.Filters())
	assert.True(t, c.RemoveFilter(f))
	assert.False(t, c.RemoveFilter(f))
	assert.Empty(t, c.Filters())
}

func TestPagingIntents(t *testing.T) {
	c := New(state.New())
	c.OnTransportMessage([]byte(`{"message":{"offset":"100"}}`))

	require.NoError(t, c.SetPage(1))
	assert.Equal(t, 1, c.Page())
	assert.Equal(t, []state.UIFilter{
		{Parameter: "offset", Operator: ">=", Value: "60"},
		{Parameter: "offset", Operator: "<=", Value: "80"},
	}, c.Filters())

	assert.Error(t, c.SetPage(-1))
	assert.Equal(t, 1, c.Page())

	require.NoError(t, c.SetPageSize(10))
	assert.Equal(t, 10, c.PageSize())
	assert.Equal(t, 10, c.TotalPages())
	assert.True(t, errors.Is(c.SetPageSize(0), state.ErrInvalidPageSize))

	c.SetTopic("orders")
	assert.Equal(t, "orders", c.Topic())
	assert.Equal(t, "orders", c.Snapshot().SelectedTopic)
}

func TestBufferSearchByDefault(t *testing.T) {
	c := New(state.New())
	c.OnTransportMessage([]byte(`{"message":{"offset":"1","value":"needle"}}`))
	c.OnTransportMessage([]byte(`{"message":{"offset":"2","value":"hay"}}`))

	res, err := c.Search("needle", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Offset)
}

func TestEndToEndOverWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var req map[string]any
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			switch req["request"] {
			case "topics":
				_ = ws.WriteJSON(map[string]any{"topic": map[string]string{"topic": "orders"}})
			case "messages":
				for i := 1; i <= 3; i++ {
					_ = ws.WriteJSON(map[string]any{"message": map[string]any{"topic": "orders", "offset": json.Number(strings.Repeat("1", i))}})
				}
				_ = ws.WriteJSON(map[string]any{"response": map[string]any{"request_id": req["request_id"], "count": 3}})
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	c := New(state.New(), WithRequestTimeout(time.Hour))
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx, c) }()

	require.Eventually(t, func() bool { return len(c.Topics()) == 2 }, 2*time.Second, 5*time.Millisecond)

	_, err = c.Request()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !c.IsRequesting() }, 2*time.Second, 5*time.Millisecond)

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, 111, msgs[0].Offset)
	assert.Equal(t, 111, c.TotalSize())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, c.IsConnected())
}
