package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/search"
)

const searchLimit = 20

// waitForChange blocks until the controller reports a change or the app is closed.
func (a *App) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-a.changes:
			return stateChangedMsg{}
		case <-a.done:
			return nil
		}
	}
}

func (a *App) renderMessage(m protocol.Message) tea.Cmd {
	return func() tea.Msg {
		renderer, err := a.getRenderer()
		if err != nil {
			return errorMsg{err: wrapErr("create renderer", err)}
		}

		rendered, err := renderer.Render(messageMarkdown(m))
		if err != nil {
			return errorMsg{err: wrapErr(fmt.Sprintf("render message #%d", m.Offset), err)}
		}
		return messageRenderedMsg{content: rendered}
	}
}

// messageMarkdown lays a message out for the reader: a heading, the scalar
// fields as a table and the record as indented JSON.
func messageMarkdown(m protocol.Message) string {
	var b strings.Builder

	topic := m.Topic
	if topic == "" {
		topic = "unknown topic"
	}
	fmt.Fprintf(&b, "# %s • #%d\n\n", topic, m.Offset)

	if t, ok := messageTime(m); ok {
		fmt.Fprintf(&b, "*%s*\n\n", t.Local().Format("Mon Jan 2 2006, 15:04:05 MST"))
	}

	names := make([]string, 0, len(m.Fields))
	for name, v := range m.Fields {
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		b.WriteString("| field | value |\n|---|---|\n")
		for _, name := range names {
			v, _ := m.Field(name)
			fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(name), escapeCell(v))
		}
		b.WriteString("\n")
	}

	b.WriteString("```json\n")
	b.WriteString(indentJSON(m))
	b.WriteString("\n```\n")
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func indentJSON(m protocol.Message) string {
	raw := []byte(m.Raw)
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(m); err != nil {
			return "{}"
		}
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func (a *App) performSearch(query string) tea.Cmd {
	if a.previousView == ViewReader && a.currentMessage != nil {
		return a.performSearchInMessage(*a.currentMessage, query)
	}
	return func() tea.Msg {
		results, err := a.ctrl.Search(query, searchLimit)
		if err != nil {
			return errorMsg{err: wrapErr("search", err)}
		}

		items := make([]searchResultItem, 0, len(results))
		for _, r := range results {
			items = append(items, searchResultItem{result: r})
		}
		return searchResultsMsg{query: query, results: items}
	}
}

// performSearchInMessage lists every matching field of a single message.
func (a *App) performSearchInMessage(m protocol.Message, query string) tea.Cmd {
	return func() tea.Msg {
		results, err := a.finder.SearchInMessage(&m, query)
		if err != nil {
			return errorMsg{err: wrapErr("search message", err)}
		}

		var items []searchResultItem
		for _, r := range results {
			for i := range r.Matches {
				items = append(items, searchResultItem{result: r, match: &r.Matches[i]})
			}
		}
		return searchResultsMsg{query: query, results: items}
	}
}

// resolveResult finds the message behind a search hit. Index hits without a
// capture archive carry no message, so the live buffer is consulted.
func (a *App) resolveResult(r *search.Result) (*protocol.Message, bool) {
	if r == nil {
		return nil, false
	}
	if r.Message != nil {
		return r.Message, true
	}
	for _, m := range a.ctrl.Messages() {
		if m.Offset == r.Offset && m.Topic == r.Topic {
			m := m
			return &m, true
		}
	}
	return nil, false
}
