package state

import (
	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/protocol"
)

const (
	// AllTopics is the sentinel topic that selects every topic.
	AllTopics = "all"

	DefaultPageSize  = 20
	DefaultTotalSize = 1
)

var (
	ErrInvalidPage     = errors.New("page must not be negative")
	ErrInvalidPageSize = errors.New("page size must be positive")
)

// Sender is the send capability bound by an open connection.
type Sender interface {
	SendObject(v any) error
}

// UIFilter is a filter as the user enters it, with a human operator symbol.
type UIFilter struct {
	Parameter string `json:"parameter"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
}

func (f UIFilter) String() string {
	return f.Parameter + " " + f.Operator + " " + f.Value
}

// ApplicationState is a value copy of everything the view can read.
type ApplicationState struct {
	ConnectionOpen bool
	Topics         []string
	SelectedTopic  string
	Messages       []protocol.Message
	Filters        []UIFilter
	IsRequesting   bool
	PageSize       int
	TotalSize      int
}

// TotalPages is the number of whole pages below the current total.
func (s ApplicationState) TotalPages() int {
	if s.PageSize <= 0 {
		return 0
	}
	return s.TotalSize / s.PageSize
}

func initialState() ApplicationState {
	return ApplicationState{
		Topics:        []string{AllTopics},
		SelectedTopic: AllTopics,
		Messages:      []protocol.Message{},
		Filters:       []UIFilter{},
		PageSize:      DefaultPageSize,
		TotalSize:     DefaultTotalSize,
	}
}

func (s ApplicationState) clone() ApplicationState {
	out := s
	out.Topics = append([]string(nil), s.Topics...)
	out.Messages = append([]protocol.Message(nil), s.Messages...)
	out.Filters = append([]UIFilter(nil), s.Filters...)
	return out
}
