package search

import "github.com/pders01/streamview/internal/protocol"

// Searcher defines the minimal search API used by the TUI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// Indexer is implemented by engines that keep an external index and want
// every received message.
type Indexer interface {
	Index(m *protocol.Message) error
}

// DocCounter provides lightweight stats for visibility/debugging.
type DocCounter interface {
	DocCount() (int, error)
}
