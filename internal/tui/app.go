package tui

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/streamview/internal/config"
	"github.com/pders01/streamview/internal/controller"
	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/search"
)

const defaultSearchDebounce = 150 * time.Millisecond

type App struct {
	config     *config.Config
	ctrl       *controller.Controller
	finder     *search.Engine
	keyHandler *KeyHandler

	messageList list.Model
	topicList   list.Model
	filterList  list.Model
	searchList  list.Model
	searchInput textinput.Model
	filterInput textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	help        help.Model

	view           View
	previousView   View
	cameFromSearch bool
	currentMessage *protocol.Message
	searchResults  []searchResultItem

	width  int
	height int
	err    error

	status     string
	statusKind StatusKind

	wasRequesting  bool
	droppedAtStart int64

	glamourRenderer *glamour.TermRenderer
	rendererWidth   int
	loadingMessage  bool

	pendingSearchQuery string
	searchSeq          int
	searchDebounce     time.Duration

	changes   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newList(title string, filtering bool) list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(filtering)
	l.SetShowHelp(false)
	return l
}

// NewApp builds the view over ctrl and installs the controller's notify hook.
func NewApp(ctrl *controller.Controller, cfg *config.Config) *App {
	ApplyColors(cfg.UI.Colors)

	fi := textinput.New()
	fi.Placeholder = "offset >= 100, key = user-42 …"
	fi.CharLimit = 256

	si := textinput.New()
	si.Placeholder = "Search messages..."
	si.CharLimit = 256

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(AccentColor)),
	)

	app := &App{
		config:         cfg,
		ctrl:           ctrl,
		finder:         search.NewEngine(ctrl.Messages),
		messageList:    newList("› messages", true),
		topicList:      newList("› topics", true),
		filterList:     newList("› filters", false),
		searchList:     newList("› search results", false),
		searchInput:    si,
		filterInput:    fi,
		viewport:       viewport.New(0, 0),
		spinner:        sp,
		help:           help.New(),
		view:           ViewMessages,
		previousView:   ViewMessages,
		searchResults:  []searchResultItem{},
		searchDebounce: defaultSearchDebounce,
		changes:        make(chan struct{}, 1),
		done:           make(chan struct{}),
	}

	app.keyHandler = NewKeyHandler(app, cfg)
	ctrl.SetNotify(app.notifyChanged)
	app.syncFromController()

	return app
}

// notifyChanged may run on any goroutine. Bursts of changes collapse into a
// single redraw.
func (a *App) notifyChanged() {
	select {
	case a.changes <- struct{}{}:
	default:
	}
}

// Close stops waiting for state changes.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.ctrl.SetNotify(nil)
		close(a.done)
	})
}

func (a *App) setStatus(msg string, kind StatusKind) {
	a.status = msg
	a.statusKind = kind
	a.err = nil
}

// startSpinner shows msg next to the spinner until the request settles.
func (a *App) startSpinner(msg string) tea.Cmd {
	a.setStatus(msg, StatusInfo)
	return a.spinner.Tick
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	reader := a.config.UI.Reader
	maxWidth, minWidth := reader.WordWrapMaxWidth, reader.WordWrapMinWidth
	if maxWidth <= 0 {
		maxWidth = 120
	}
	if minWidth <= 0 || minWidth > maxWidth {
		minWidth = 40
	}

	wordWrapWidth := (a.width * 9) / 10
	if wordWrapWidth > maxWidth {
		wordWrapWidth = maxWidth
	}
	if wordWrapWidth < minWidth {
		wordWrapWidth = minWidth
	}
	if a.width < minWidth+10 {
		wordWrapWidth = max(a.width-4, 20)
	}

	if a.glamourRenderer == nil || abs(a.rendererWidth-wordWrapWidth) > 10 {
		styleOpt := glamour.WithAutoStyle()
		if reader.Style != "" && reader.Style != "auto" {
			styleOpt = glamour.WithStandardStyle(reader.Style)
		}
		r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(wordWrapWidth))
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wordWrapWidth
	}

	return a.glamourRenderer, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.waitForChange(),
		tea.EnterAltScreen,
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		listHeight := msg.Height - 4
		a.messageList.SetSize(msg.Width, listHeight)
		a.topicList.SetSize(msg.Width, listHeight)
		a.filterList.SetSize(msg.Width, listHeight)
		// Search view chrome takes 11 lines.
		a.searchList.SetSize(msg.Width, max(msg.Height-11, 5))
		a.viewport.Width = msg.Width
		a.viewport.Height = listHeight
		a.help.Width = msg.Width

		inputWidth := msg.Width - 8
		if inputWidth < 20 {
			inputWidth = msg.Width
		}
		a.filterInput.Width = inputWidth
		a.searchInput.Width = inputWidth

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case stateChangedMsg:
		a.syncFromController()
		return a, a.waitForChange()

	case spinner.TickMsg:
		if !a.ctrl.IsRequesting() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case messageRenderedMsg:
		if a.view == ViewReader {
			a.viewport.SetContent(msg.content)
			a.viewport.GotoTop()
			a.loadingMessage = false
			a.status = ""
		}

	case searchDebounceFireMsg:
		if msg.seq == a.searchSeq && a.view == ViewSearch {
			return a, a.performSearch(a.pendingSearchQuery)
		}
		return a, nil

	case searchResultsMsg:
		if a.view == ViewSearch && msg.query == a.pendingSearchQuery {
			a.searchResults = msg.results
			items := make([]list.Item, len(msg.results))
			for i, result := range msg.results {
				items[i] = result
			}
			a.searchList.SetItems(items)
			if len(items) == 0 {
				a.setStatus(MsgNoResults, StatusInfo)
			} else {
				a.setStatus(MsgResultsCount(len(items)), StatusInfo)
			}
		}

	case errorMsg:
		a.err = msg.err
		a.loadingMessage = false
	}

	switch a.view {
	case ViewMessages:
		newListModel, cmd := a.messageList.Update(msg)
		a.messageList = newListModel
		cmds = append(cmds, cmd)
	case ViewTopics:
		newListModel, cmd := a.topicList.Update(msg)
		a.topicList = newListModel
		cmds = append(cmds, cmd)
	case ViewFilters:
		newListModel, cmd := a.filterList.Update(msg)
		a.filterList = newListModel
		cmds = append(cmds, cmd)
	case ViewReader:
		switch msg.(type) {
		case tea.WindowSizeMsg, tea.MouseMsg:
			newViewport, cmd := a.viewport.Update(msg)
			a.viewport = newViewport
			cmds = append(cmds, cmd)
		}
	case ViewAddFilter:
		newTextInput, cmd := a.filterInput.Update(msg)
		a.filterInput = newTextInput
		cmds = append(cmds, cmd)
	case ViewSearch:
		newSearchList, cmd := a.searchList.Update(msg)
		a.searchList = newSearchList
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// syncFromController copies the controller state into the lists.
func (a *App) syncFromController() {
	snap := a.ctrl.Snapshot()

	msgItems := make([]list.Item, len(snap.Messages))
	for i, m := range snap.Messages {
		msgItems[i] = messageItem{msg: m}
	}
	a.messageList.SetItems(msgItems)
	a.messageList.Title = fmt.Sprintf("› messages • %s", snap.SelectedTopic)

	topicItems := make([]list.Item, len(snap.Topics))
	for i, t := range snap.Topics {
		topicItems[i] = topicItem{name: t, selected: t == snap.SelectedTopic}
	}
	a.topicList.SetItems(topicItems)

	filterItems := make([]list.Item, len(snap.Filters))
	for i, f := range snap.Filters {
		filterItems[i] = filterItem{expr: f.String(), index: i}
	}
	a.filterList.SetItems(filterItems)

	switch {
	case snap.IsRequesting && !a.wasRequesting:
		a.droppedAtStart = a.ctrl.Dropped()
	case !snap.IsRequesting && a.wasRequesting:
		docs := -1
		if dc, ok := a.ctrl.Searcher().(search.DocCounter); ok {
			if n, err := dc.DocCount(); err == nil {
				docs = n
			}
		}
		dropped := int(a.ctrl.Dropped() - a.droppedAtStart)
		a.setStatus(MsgRequestSummary(len(snap.Messages), dropped, docs), StatusSuccess)
	}
	a.wasRequesting = snap.IsRequesting
}

func (a *App) View() string {
	var content string
	bodyHeight := a.height - 4

	switch a.view {
	case ViewMessages:
		if len(a.messageList.Items()) == 0 && !a.ctrl.IsRequesting() {
			content = renderCentered(a.width, bodyHeight, GetWelcomeMessage(a.keyHandler.keys.Request.Help().Key))
		} else {
			content = a.messageList.View()
		}
	case ViewTopics:
		content = a.topicList.View()
	case ViewFilters:
		if len(a.filterList.Items()) == 0 {
			content = lipgloss.JoinVertical(lipgloss.Top,
				TitleStyle.Render("› filters"),
				"",
				renderMuted(fmt.Sprintf("No filters • press %s to add one", a.keyHandler.keys.AddFilter.Help().Key)),
			)
		} else {
			content = a.filterList.View()
		}
	case ViewReader:
		if a.loadingMessage {
			content = renderCentered(a.width, bodyHeight, renderMuted(MsgLoadingRecord))
		} else {
			content = a.viewport.View()
		}
	case ViewAddFilter:
		content = renderCentered(a.width, bodyHeight,
			lipgloss.JoinVertical(
				lipgloss.Center,
				TitleStyle.Render("› add filter"),
				"",
				renderInputFrame(a.filterInput.View(), a.filterInput.Focused(), a.filterInput.Width),
				"",
				renderHelp("parameter operator value • operators: = > < <= >="),
				renderHelp("Press Enter to add, Esc to cancel"),
			),
		)
	case ViewSearch:
		content = a.searchView(bodyHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Top,
		content,
		renderSeparator(a.width-1),
		a.infoLine(),
		a.getCustomStatusBar(),
	)
}

func (a *App) searchView(height int) string {
	header := "› search"
	if a.previousView == ViewReader && a.currentMessage != nil {
		header = fmt.Sprintf("› search in message #%d", a.currentMessage.Offset)
	}
	subtitle := ""
	if a.searchInput.Focused() {
		subtitle = "Type to search • Tab/↓: results • Esc: back"
	} else if len(a.searchList.Items()) > 0 {
		subtitle = "↑↓: navigate • Enter: open • Tab/↑: search box • Esc: back"
	} else {
		subtitle = "No results found • Tab/↑: search box • Esc: back"
	}

	body := lipgloss.JoinVertical(
		lipgloss.Top,
		renderHeader(header, "", a.width),
		"",
		renderInputFrame(a.searchInput.View(), a.searchInput.Focused(), a.searchInput.Width),
		renderMuted(subtitle),
		"",
		a.searchList.View(),
	)
	return ContentWrapper(a.width, height).Render(body)
}

// infoLine shows the connection and paging state.
func (a *App) infoLine() string {
	snap := a.ctrl.Snapshot()

	var conn string
	if snap.ConnectionOpen {
		conn = StatusSuccessStyle.Render("● " + MsgConnected)
	} else {
		conn = StatusErrorStyle.Render("○ " + MsgDisconnected)
	}
	parts := []string{
		conn + " " + renderMuted(truncateMiddle(a.config.Server.URL, 32)),
		"topic: " + TopicStyle.Render(truncateMiddle(snap.SelectedTopic, 24)),
		fmt.Sprintf("page %d/%d", a.ctrl.Page(), snap.TotalPages()),
		fmt.Sprintf("size %d", snap.PageSize),
	}
	if n := a.ctrl.Dropped(); n > 0 {
		parts = append(parts, StatusWarnStyle.Render(fmt.Sprintf("%d dropped", n)))
	}
	if snap.IsRequesting {
		parts = append(parts, a.spinner.View()+" "+MsgRequesting)
	} else if a.status != "" {
		parts = append(parts, a.statusKind.style().Render(a.status))
	}

	return StatusBarStyle.Width(a.width).Render(strings.Join(parts, " • "))
}

func (a *App) getCustomStatusBar() string {
	err := a.err
	if err == nil && !a.ctrl.IsConnected() {
		err = a.ctrl.LastError()
	}
	if err != nil {
		return lipgloss.NewStyle().
			Width(a.width).
			Padding(0, 1).
			Render(ErrorMessageStyle.Render(fmt.Sprintf("✗ %v", err)))
	}

	if a.help.ShowAll {
		return lipgloss.NewStyle().Padding(0, 1).Render(a.help.View(a.keyHandler.keys))
	}

	commands := a.keyHandler.GetHelpForCurrentView()
	if len(commands) == 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Foreground(MutedColor).
		Render(strings.Join(commands, " • "))
}

type messageItem struct {
	msg protocol.Message
}

func (i messageItem) Title() string {
	topic := i.msg.Topic
	if topic == "" {
		topic = "-"
	}
	return OffsetStyle.Render(fmt.Sprintf("#%d", i.msg.Offset)) + " " + TopicStyle.Render(topic)
}

func (i messageItem) Description() string {
	desc := truncateEnd(messageSummary(i.msg), 80)
	timeStr := ""
	if t, ok := messageTime(i.msg); ok {
		timeStr = TimeStyle.Render(" • " + t.Local().Format("Jan 2, 15:04:05"))
	}
	return renderMuted(desc) + timeStr
}

func (i messageItem) FilterValue() string {
	return fmt.Sprintf("%d %s %s", i.msg.Offset, i.msg.Topic, messageSummary(i.msg))
}

// timeFields are tried in order for the message timestamp.
var timeFields = []string{"at", "timestamp", "time"}

// messageTime parses the message timestamp in whatever format the producer used.
func messageTime(m protocol.Message) (time.Time, bool) {
	for _, name := range timeFields {
		v, ok := m.Field(name)
		if !ok || v == "" {
			continue
		}
		t, err := dateparse.ParseAny(v)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// messageSummary lists the payload fields as key=value, skipping the ones
// shown elsewhere.
func messageSummary(m protocol.Message) string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		switch name {
		case protocol.ParamOffset, protocol.ParamTopic, "at":
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		v, _ := m.Field(name)
		parts = append(parts, name+"="+v)
	}
	return strings.Join(parts, " ")
}

type topicItem struct {
	name     string
	selected bool
}

func (i topicItem) Title() string {
	if i.selected {
		return TopicStyle.Render("● " + i.name)
	}
	return "  " + i.name
}

func (i topicItem) Description() string {
	if i.name == "all" {
		return renderMuted("every topic")
	}
	return ""
}

func (i topicItem) FilterValue() string { return i.name }

type filterItem struct {
	expr  string
	index int
}

func (i filterItem) Title() string       { return i.expr }
func (i filterItem) Description() string { return renderMuted(fmt.Sprintf("filter %d", i.index+1)) }
func (i filterItem) FilterValue() string { return i.expr }

type searchResultItem struct {
	result *search.Result
	match  *search.Match
}

func (i searchResultItem) Title() string {
	if i.match != nil {
		return TopicStyle.Render(i.match.Field)
	}
	return OffsetStyle.Render(fmt.Sprintf("#%d", i.result.Offset)) + " " + TopicStyle.Render(i.result.Topic)
}

func (i searchResultItem) Description() string {
	if i.match != nil {
		return renderMuted(truncateEnd(i.match.Text, 80))
	}
	snippet := ""
	if len(i.result.Matches) > 0 {
		snippet = i.result.Matches[0].Field + ": " + i.result.Matches[0].Text
	}
	return renderMuted(truncateEnd(snippet, 60) + fmt.Sprintf(" • score %.1f", i.result.Score))
}

func (i searchResultItem) FilterValue() string {
	if i.match != nil {
		return i.match.Text
	}
	return i.result.Topic
}

type stateChangedMsg struct{}

type messageRenderedMsg struct {
	content string
}

type errorMsg struct {
	err error
}

type searchResultsMsg struct {
	query   string
	results []searchResultItem
}

type searchDebounceFireMsg struct {
	seq int
}
