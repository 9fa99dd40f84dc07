package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/pders01/streamview/internal/config"
	"github.com/pders01/streamview/internal/controller"
	"github.com/pders01/streamview/internal/state"
)

func TestKeyHandler_ModifierKey(t *testing.T) {
	app, _ := newTestApp(t)

	assert.NotNil(t, app.keyHandler)
	assert.Equal(t, "ctrl+", app.keyHandler.modifierKey)
	assert.Equal(t, []string{"ctrl+r"}, app.keyHandler.keys.Request.Keys())
	assert.Equal(t, []string{"["}, app.keyHandler.keys.PrevPage.Keys())
}

func TestKeyHandler_CustomModifier(t *testing.T) {
	cfg := config.TestConfig()
	cfg.Keys.Modifier = "alt"
	cfg.Keys.Bindings.Topics = "o"
	ctrl := controller.New(state.New())
	app := NewApp(ctrl, cfg)
	defer app.Close()

	altO := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'o'}, Alt: true}
	assert.True(t, key.Matches(altO, app.keyHandler.keys.Topics))

	app.Update(altO)
	assert.Equal(t, ViewTopics, app.view, "alt+o should switch to ViewTopics")

	app.view = ViewMessages
	app.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, ViewMessages, app.view, "ctrl+t is not bound any more")
}

func TestKeyHandler_QuitKeys(t *testing.T) {
	for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyCtrlC}} {
		app, _ := newTestApp(t)
		cmd := press(app, msg)
		if assert.NotNil(t, cmd, msg.String()) {
			assert.Equal(t, tea.Quit(), cmd(), msg.String())
		}
	}
}

func TestKeyHandler_QuitKeyIsTextInSearch(t *testing.T) {
	app, _ := newTestApp(t)
	press(app, tea.KeyMsg{Type: tea.KeyCtrlS})

	press(app, runes("q"))
	assert.Equal(t, ViewSearch, app.view)
	assert.Equal(t, "q", app.searchInput.Value())
}

func TestKeyHandler_ListFilteringOwnsKeys(t *testing.T) {
	app, ctrl := newTestApp(t)
	ctrl.OnTransportMessage([]byte(`{"message":{"topic":"orders","offset":"1"}}`))
	app.syncFromController()

	press(app, runes("/"))
	assert.True(t, app.keyHandler.isListFiltering())

	press(app, runes("]"))
	assert.Equal(t, 0, ctrl.Page(), "page keys are typed into the list filter")
}

func TestSanitizeSearchInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  needle  ", "needle"},
		{"a\tb\nc", "a b c"},
		{"a    b", "a b"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeSearchInput(tt.in), "%q", tt.in)
	}

	long := make([]rune, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, sanitizeSearchInput(string(long)), 256)
}

func TestGetHelpForCurrentView(t *testing.T) {
	app, _ := newTestApp(t)
	kh := app.keyHandler

	tests := []struct {
		view     View
		contains string
	}{
		{ViewMessages, "ctrl+r: request"},
		{ViewMessages, "]: older page"},
		{ViewTopics, "enter: select"},
		{ViewFilters, "a: add filter"},
		{ViewReader, "ctrl+s: search"},
		{ViewAddFilter, "enter: add"},
	}
	for _, tt := range tests {
		app.view = tt.view
		assert.Contains(t, kh.GetHelpForCurrentView(), tt.contains, tt.view.String())
	}

	app.view = ViewFilters
	assert.NotContains(t, kh.GetHelpForCurrentView(), "d: remove filter")
}
