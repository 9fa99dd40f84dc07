package tui

import (
	"fmt"
	"strings"
)

// Canonical short status messages used across the app.
const (
	MsgRequesting    = "Requesting…"
	MsgConnected     = "Connected"
	MsgDisconnected  = "Disconnected"
	MsgLoadingRecord = "Loading message…"
	MsgNoResults     = "No results"
	MsgNoFilter      = "No filter selected"
	MsgRequestIdle   = "Press the request key to fetch messages"
)

func MsgTopicSelected(topic string) string {
	return fmt.Sprintf("Topic '%s'", strings.TrimSpace(topic))
}

func MsgFilterAdded(expr string) string {
	return fmt.Sprintf("Added filter %s", expr)
}

func MsgFilterRemoved(expr string) string {
	return fmt.Sprintf("Removed filter %s", expr)
}

func MsgPageSet(page, total int) string {
	return fmt.Sprintf("Page %d/%d set, request to load it", page, total)
}

func MsgPageSize(n int) string {
	return fmt.Sprintf("Page size %d", n)
}

func MsgResultsCount(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}

// MsgRequestSummary reports a finished request. docCount < 0 omits the index size.
func MsgRequestSummary(received, dropped int, docCount int) string {
	base := fmt.Sprintf("Received %d messages", received)
	if dropped > 0 {
		base += fmt.Sprintf(" • %d dropped", dropped)
	}
	if docCount >= 0 {
		base += fmt.Sprintf(" • idx: %d docs", docCount)
	}
	return base
}
