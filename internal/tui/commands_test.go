package tui

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/search"
)

func decodeMessage(t *testing.T, raw string) protocol.Message {
	t.Helper()
	var m protocol.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestMessageMarkdown(t *testing.T) {
	m := decodeMessage(t, `{"topic":"orders","offset":"5","key":"a|b","nested":{"x":1}}`)

	md := messageMarkdown(m)
	assert.Contains(t, md, "# orders • #5")
	assert.Contains(t, md, `| key | a\|b |`)
	assert.Contains(t, md, "| offset | 5 |")
	assert.NotContains(t, md, "| nested |", "objects are shown in the JSON block only")
	assert.Contains(t, md, "```json\n{\n  \"topic\": \"orders\"")
}

func TestMessageMarkdownWithoutRaw(t *testing.T) {
	m := protocol.Message{Offset: 9, Fields: map[string]any{"value": "v"}}
	md := messageMarkdown(m)
	assert.Contains(t, md, "# unknown topic • #9")
	assert.Contains(t, md, `"value": "v"`)
}

func TestMessageTime(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{"rfc3339", `{"offset":"1","at":"2024-03-01T10:00:00Z"}`, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"unix millis", `{"offset":"1","at":1709287200000}`, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"timestamp field", `{"offset":"1","timestamp":"2024-03-01 10:00:00"}`, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"garbage", `{"offset":"1","at":"not a time"}`, time.Time{}, false},
		{"missing", `{"offset":"1"}`, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := messageTime(decodeMessage(t, tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestMessageSummary(t *testing.T) {
	m := decodeMessage(t, `{"topic":"orders","offset":"5","at":"2024-03-01T10:00:00Z","value":"v","key":"k"}`)
	assert.Equal(t, "key=k value=v", messageSummary(m))
}

func TestResolveResult(t *testing.T) {
	app, ctrl := newTestApp(t)
	ctrl.OnTransportMessage([]byte(`{"message":{"topic":"orders","offset":"4"}}`))

	m, ok := app.resolveResult(&search.Result{Topic: "orders", Offset: 4})
	require.True(t, ok)
	assert.Equal(t, 4, m.Offset)

	_, ok = app.resolveResult(&search.Result{Topic: "orders", Offset: 5})
	assert.False(t, ok)

	_, ok = app.resolveResult(nil)
	assert.False(t, ok)
}

func TestRenderMessage(t *testing.T) {
	app, _ := newTestApp(t)
	m := decodeMessage(t, `{"topic":"orders","offset":"5","key":"k1"}`)

	msg := app.renderMessage(m)()
	rendered, ok := msg.(messageRenderedMsg)
	require.True(t, ok, "got %T", msg)
	assert.Contains(t, rendered.content, "orders")
}
