package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/config"
	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/request"
	"github.com/pders01/streamview/internal/search"
)

// pageSizeStep is how far the grow and shrink keys move the page size.
const pageSizeStep = 5

type KeyHandler struct {
	app         *App
	config      *config.Config
	modifierKey string
	keys        keyMap
}

func NewKeyHandler(app *App, cfg *config.Config) *KeyHandler {
	modifierKey := cfg.Keys.Modifier + "+"
	return &KeyHandler{
		app:         app,
		config:      cfg,
		modifierKey: modifierKey,
		keys:        newKeyMap(modifierKey, cfg.Keys.Bindings),
	}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}

	if kh.isListFiltering() {
		return kh.delegateToCharm(msg)
	}

	if model, cmd, handled := kh.handleCustomKeys(msg); handled {
		return model, cmd
	}

	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	switch kh.app.view {
	case ViewAddFilter:
		return kh.app.filterInput.Focused()
	case ViewSearch:
		return kh.app.searchInput.Focused()
	default:
		return false
	}
}

// isListFiltering reports whether the current list is taking filter input.
func (kh *KeyHandler) isListFiltering() bool {
	switch kh.app.view {
	case ViewMessages:
		return kh.app.messageList.FilterState() == list.Filtering
	case ViewTopics:
		return kh.app.topicList.FilterState() == list.Filtering
	default:
		return false
	}
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return kh.navigateBack()
	case "ctrl+c":
		return kh.app, tea.Quit
	case "enter":
		return kh.handleTextInputEnter()
	case "tab", "down":
		if kh.app.view == ViewSearch {
			if len(kh.app.searchList.Items()) > 0 {
				kh.app.searchInput.Blur()
				kh.app.searchList.Select(0)
			}
			return kh.app, nil
		}
		return kh.delegateToTextInput(msg)
	default:
		return kh.delegateToTextInput(msg)
	}
}

func (kh *KeyHandler) handleTextInputEnter() (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewAddFilter:
		input := strings.TrimSpace(kh.app.filterInput.Value())
		if input == "" {
			return kh.app, nil
		}
		f, err := kh.app.ctrl.AddFilterExpr(input)
		if err != nil {
			return kh.app, func() tea.Msg { return errorMsg{err: wrapErr("add filter", err)} }
		}
		kh.app.filterInput.Reset()
		kh.app.view = ViewFilters
		kh.app.syncFromController()
		kh.app.setStatus(MsgFilterAdded(f.String()), StatusSuccess)
		return kh.app, nil

	case ViewSearch:
		if items := kh.app.searchList.Items(); len(items) > 0 {
			if i, ok := items[0].(searchResultItem); ok {
				return kh.selectSearchResult(i)
			}
		}
		return kh.app, nil

	default:
		return kh.app, nil
	}
}

func (kh *KeyHandler) delegateToTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewAddFilter:
		newTextInput, cmd := kh.app.filterInput.Update(msg)
		kh.app.filterInput = newTextInput
		return kh.app, cmd

	case ViewSearch:
		prev := kh.app.pendingSearchQuery
		newSearchInput, cmd := kh.app.searchInput.Update(msg)
		kh.app.searchInput = newSearchInput

		newVal := sanitizeSearchInput(kh.app.searchInput.Value())
		if newVal != prev {
			kh.app.pendingSearchQuery = newVal
			kh.app.searchSeq++
			seq := kh.app.searchSeq
			wait := kh.app.searchDebounce
			return kh.app, tea.Batch(cmd, tea.Tick(wait, func(time.Time) tea.Msg { return searchDebounceFireMsg{seq: seq} }))
		}
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

func (kh *KeyHandler) handleCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	k := kh.keys
	switch {
	case key.Matches(msg, k.Quit):
		return kh.app, tea.Quit, true
	case key.Matches(msg, k.Back):
		model, cmd := kh.navigateBack()
		return model, cmd, true
	case key.Matches(msg, k.Help):
		kh.app.help.ShowAll = !kh.app.help.ShowAll
		return kh.app, nil, true
	case key.Matches(msg, k.Search):
		model, cmd := kh.enterSearchMode()
		return model, cmd, true
	case key.Matches(msg, k.Request):
		return kh.app, kh.request(), true
	case key.Matches(msg, k.Topics):
		kh.app.previousView = kh.app.view
		kh.app.view = ViewTopics
		return kh.app, nil, true
	case key.Matches(msg, k.Filters):
		kh.app.previousView = kh.app.view
		kh.app.view = ViewFilters
		return kh.app, nil, true
	}

	switch kh.app.view {
	case ViewMessages:
		return kh.handleMessagesCustomKeys(msg)
	case ViewTopics:
		return kh.handleTopicsCustomKeys(msg)
	case ViewFilters:
		return kh.handleFiltersCustomKeys(msg)
	default:
		return kh.app, nil, false
	}
}

// handleMessagesCustomKeys moves through pages. A page change only rewrites
// the offset filters, the next request loads it.
func (kh *KeyHandler) handleMessagesCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	k := kh.keys
	ctrl := kh.app.ctrl
	switch {
	case key.Matches(msg, k.NextPage):
		return kh.app, kh.setPage(ctrl.Page() + 1), true
	case key.Matches(msg, k.PrevPage):
		if ctrl.Page() == 0 {
			kh.app.setStatus("Already on the newest page", StatusWarn)
			return kh.app, nil, true
		}
		return kh.app, kh.setPage(ctrl.Page() - 1), true
	case key.Matches(msg, k.GrowPage):
		return kh.app, kh.setPageSize(ctrl.PageSize() + pageSizeStep), true
	case key.Matches(msg, k.ShrinkPage):
		return kh.app, kh.setPageSize(max(ctrl.PageSize()-pageSizeStep, 1)), true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleTopicsCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() != "enter" {
		return kh.app, nil, false
	}
	if i, ok := kh.app.topicList.SelectedItem().(topicItem); ok {
		kh.app.ctrl.SetTopic(i.name)
		kh.app.syncFromController()
		kh.app.view = ViewMessages
		kh.app.setStatus(MsgTopicSelected(i.name), StatusSuccess)
	}
	return kh.app, nil, true
}

func (kh *KeyHandler) handleFiltersCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	k := kh.keys
	switch {
	case key.Matches(msg, k.AddFilter):
		kh.app.view = ViewAddFilter
		kh.app.filterInput.Reset()
		kh.app.filterInput.Focus()
		return kh.app, nil, true
	case key.Matches(msg, k.RemoveFilter):
		i, ok := kh.app.filterList.SelectedItem().(filterItem)
		if !ok {
			kh.app.setStatus(MsgNoFilter, StatusWarn)
			return kh.app, nil, true
		}
		filters := kh.app.ctrl.Filters()
		if i.index < len(filters) && kh.app.ctrl.RemoveFilter(filters[i.index]) {
			kh.app.syncFromController()
			kh.app.setStatus(MsgFilterRemoved(i.expr), StatusSuccess)
		}
		return kh.app, nil, true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) request() tea.Cmd {
	_, err := kh.app.ctrl.Request()
	switch {
	case err == nil:
		kh.app.syncFromController()
		return kh.app.startSpinner(MsgRequesting)
	case errors.Is(err, request.ErrInFlight):
		kh.app.setStatus("A request is already running", StatusWarn)
		return nil
	default:
		return func() tea.Msg { return errorMsg{err: wrapErr("request", err)} }
	}
}

func (kh *KeyHandler) setPage(p int) tea.Cmd {
	if err := kh.app.ctrl.SetPage(p); err != nil {
		return func() tea.Msg { return errorMsg{err: wrapErr("set page", err)} }
	}
	kh.app.syncFromController()
	kh.app.setStatus(MsgPageSet(p, kh.app.ctrl.TotalPages()), StatusInfo)
	return nil
}

func (kh *KeyHandler) setPageSize(n int) tea.Cmd {
	if err := kh.app.ctrl.SetPageSize(n); err != nil {
		return func() tea.Msg { return errorMsg{err: wrapErr("set page size", err)} }
	}
	kh.app.syncFromController()
	kh.app.setStatus(MsgPageSize(n), StatusInfo)
	return nil
}

// delegateToCharm lets the bubbles components handle every key we don't intercept.
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch kh.app.view {
	case ViewMessages:
		filtering := kh.isListFiltering()
		kh.app.messageList, cmd = kh.app.messageList.Update(msg)
		if msg.String() == "enter" && !filtering {
			if i, ok := kh.app.messageList.SelectedItem().(messageItem); ok {
				m := i.msg
				kh.app.cameFromSearch = false
				return kh.app, kh.openReader(&m)
			}
		}
		return kh.app, cmd

	case ViewTopics:
		kh.app.topicList, cmd = kh.app.topicList.Update(msg)
		return kh.app, cmd

	case ViewFilters:
		kh.app.filterList, cmd = kh.app.filterList.Update(msg)
		return kh.app, cmd

	case ViewSearch:
		if !kh.app.searchInput.Focused() {
			switch msg.String() {
			case "tab", "shift+tab", "/", "i":
				kh.app.searchInput.Focus()
				return kh.app, nil
			case "up":
				if len(kh.app.searchList.Items()) > 0 && kh.app.searchList.Index() == 0 {
					kh.app.searchInput.Focus()
					return kh.app, nil
				}
			}
		}

		kh.app.searchList, cmd = kh.app.searchList.Update(msg)
		if msg.String() == "enter" && !kh.app.searchInput.Focused() {
			if i, ok := kh.app.searchList.SelectedItem().(searchResultItem); ok {
				return kh.selectSearchResult(i)
			}
		}
		return kh.app, cmd

	case ViewReader:
		kh.app.viewport, cmd = kh.app.viewport.Update(msg)
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

func (kh *KeyHandler) openReader(m *protocol.Message) tea.Cmd {
	kh.app.currentMessage = m
	kh.app.loadingMessage = true
	kh.app.view = ViewReader
	kh.app.setStatus(MsgLoadingRecord, StatusInfo)
	return kh.app.renderMessage(*m)
}

func (kh *KeyHandler) selectSearchResult(item searchResultItem) (tea.Model, tea.Cmd) {
	if item.match != nil && kh.app.currentMessage != nil {
		kh.app.view = ViewReader
		kh.app.cameFromSearch = true
		return kh.app, nil
	}

	m, ok := kh.app.resolveResult(item.result)
	if !ok {
		err := errors.Errorf("message %s #%d is no longer buffered", item.result.Topic, item.result.Offset)
		return kh.app, func() tea.Msg { return errorMsg{err: err} }
	}
	kh.app.cameFromSearch = true
	return kh.app, kh.openReader(m)
}

func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewAddFilter:
		kh.app.view = ViewFilters
		kh.app.filterInput.Reset()
		kh.app.filterInput.Blur()
		return kh.app, nil

	case ViewSearch:
		kh.app.view = kh.app.previousView
		kh.app.searchInput.Reset()
		kh.app.pendingSearchQuery = ""
		kh.app.searchResults = []searchResultItem{}
		kh.app.searchList.SetItems([]list.Item{})
		return kh.app, nil

	case ViewTopics, ViewFilters:
		kh.app.view = ViewMessages
		return kh.app, nil

	case ViewMessages:
		if kh.app.messageList.FilterState() == list.FilterApplied {
			kh.app.messageList.ResetFilter()
			return kh.app, nil
		}
		return kh.app, tea.Quit

	case ViewReader:
		if kh.app.cameFromSearch {
			kh.app.view = ViewSearch
			kh.app.cameFromSearch = false
			kh.app.searchInput.Blur()
			return kh.app, nil
		}
		kh.app.view = ViewMessages
		return kh.app, nil

	default:
		return kh.app, tea.Quit
	}
}

func (kh *KeyHandler) enterSearchMode() (tea.Model, tea.Cmd) {
	if kh.app.view != ViewSearch {
		kh.app.previousView = kh.app.view
	}
	kh.app.view = ViewSearch
	kh.app.searchInput.Reset()
	kh.app.searchInput.Focus()
	kh.app.pendingSearchQuery = ""
	kh.app.searchResults = []searchResultItem{}
	kh.app.searchList.SetItems([]list.Item{})

	if kh.app.previousView == ViewReader && kh.app.currentMessage != nil {
		kh.app.setStatus(fmt.Sprintf("Search in message #%d", kh.app.currentMessage.Offset), StatusInfo)
		return kh.app, nil
	}

	searcher := kh.app.ctrl.Searcher()
	engineName := fmt.Sprintf("%T", searcher)
	if dc, ok := searcher.(search.DocCounter); ok {
		if n, err := dc.DocCount(); err == nil {
			kh.app.setStatus(fmt.Sprintf("Search: %s • idx: %d", engineName, n), StatusInfo)
			return kh.app, nil
		}
	}
	kh.app.setStatus(fmt.Sprintf("Search: %s", engineName), StatusInfo)
	return kh.app, nil
}

// sanitizeSearchInput trims, limits and collapses whitespace in a query.
func sanitizeSearchInput(input string) string {
	input = strings.TrimSpace(input)
	if len(input) > 256 {
		input = input[:256]
	}
	return strings.Join(strings.Fields(input), " ")
}

// GetHelpForCurrentView returns the custom actions of the current view.
func (kh *KeyHandler) GetHelpForCurrentView() []string {
	k := kh.keys
	switch kh.app.view {
	case ViewMessages:
		return []string{
			helpEntry(k.Request), helpEntry(k.Topics), helpEntry(k.Filters),
			helpEntry(k.PrevPage), helpEntry(k.NextPage), helpEntry(k.Search), helpEntry(k.Help),
		}
	case ViewTopics:
		return []string{"enter: select", helpEntry(k.Request), helpEntry(k.Back)}
	case ViewFilters:
		help := []string{helpEntry(k.AddFilter)}
		if len(kh.app.filterList.Items()) > 0 {
			help = append(help, helpEntry(k.RemoveFilter))
		}
		return append(help, helpEntry(k.Request), helpEntry(k.Back))
	case ViewReader:
		return []string{helpEntry(k.Search), helpEntry(k.Back)}
	case ViewSearch:
		return []string{helpEntry(k.Search), helpEntry(k.Back)}
	case ViewAddFilter:
		return []string{"enter: add", "esc: cancel"}
	default:
		return []string{}
	}
}
