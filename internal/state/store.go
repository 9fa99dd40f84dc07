package state

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/debuglog"
	"github.com/pders01/streamview/internal/protocol"
)

// Store owns one ApplicationState. It is mutated only through its methods;
// readers get copies.
type Store struct {
	mu     sync.RWMutex
	state  ApplicationState
	sender Sender
}

type Option func(*ApplicationState)

// WithPageSize overrides the default page size. Non-positive values are ignored.
func WithPageSize(n int) Option {
	return func(s *ApplicationState) {
		if n > 0 {
			s.PageSize = n
		}
	}
}

// WithTopic overrides the initially selected topic.
func WithTopic(topic string) Option {
	return func(s *ApplicationState) {
		if topic != "" {
			s.SelectedTopic = topic
		}
	}
}

func New(opts ...Option) *Store {
	st := initialState()
	for _, opt := range opts {
		opt(&st)
	}
	return &Store{state: st}
}

func (s *Store) OnConnectionOpen(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConnectionOpen = true
	s.sender = sender
}

func (s *Store) OnConnectionClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConnectionOpen = false
	s.sender = nil
}

// OnConnectionError only reports; closing is left to OnConnectionClose.
func (s *Store) OnConnectionError(err error) {
	debuglog.Errorf("transport error: %v", err)
}

// OnTransportMessage dispatches a decoded envelope to the topic or message
// mutation. Other shapes leave the state untouched.
func (s *Store) OnTransportMessage(env protocol.Envelope) error {
	switch env.Kind() {
	case protocol.KindTopic:
		s.OnTopicArrived(env.Topic.Topic)
		return nil
	case protocol.KindMessage:
		s.OnMessageArrived(*env.Message)
		return nil
	default:
		debuglog.Warnf("ignoring %s envelope", env.Kind())
		return errors.Wrapf(protocol.ErrMalformedEnvelope, "store cannot apply %s envelope", env.Kind())
	}
}

// OnTopicArrived appends topic unless already known and reports whether it was added.
func (s *Store) OnTopicArrived(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.Topics {
		if t == topic {
			return false
		}
	}
	s.state.Topics = append(s.state.Topics, topic)
	return true
}

// OnMessageArrived records m.Offset as the total size and prepends m,
// evicting the oldest message when the buffer is full.
func (s *Store) OnMessageArrived(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalSize = m.Offset

	msgs := s.state.Messages
	if len(msgs) >= s.state.PageSize {
		msgs = msgs[:s.state.PageSize-1]
	}
	next := make([]protocol.Message, 0, len(msgs)+1)
	next = append(next, m)
	next = append(next, msgs...)
	s.state.Messages = next
}

func (s *Store) SetTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SelectedTopic = topic
}

// SetPageSize changes the page size and drops the oldest buffered messages
// that no longer fit.
func (s *Store) SetPageSize(n int) error {
	if n < 1 {
		return errors.Wrapf(ErrInvalidPageSize, "got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PageSize = n
	if len(s.state.Messages) > n {
		s.state.Messages = append([]protocol.Message(nil), s.state.Messages[:n]...)
	}
	return nil
}

// SetPage replaces any offset range filters with the bounds of page p,
// counting pages down from the current total. The lower bound is not clamped.
func (s *Store) SetPage(p int) error {
	if p < 0 {
		return errors.Wrapf(ErrInvalidPage, "got %d", p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lower, upper := PageBounds(p, s.state.PageSize, s.state.TotalSize)

	kept := s.state.Filters[:0:0]
	for _, f := range s.state.Filters {
		if isPageFilter(f) {
			continue
		}
		kept = append(kept, f)
	}
	kept = append(kept,
		UIFilter{Parameter: protocol.ParamOffset, Operator: ">=", Value: strconv.Itoa(lower)},
		UIFilter{Parameter: protocol.ParamOffset, Operator: "<=", Value: strconv.Itoa(upper)},
	)
	s.state.Filters = kept
	return nil
}

// PageBounds returns the inclusive offset range of page p.
func PageBounds(p, size, total int) (lower, upper int) {
	return total - (p+1)*size, total - p*size
}

func isPageFilter(f UIFilter) bool {
	return f.Parameter == protocol.ParamOffset && (f.Operator == ">=" || f.Operator == "<=")
}

func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Messages = []protocol.Message{}
}

// TakeMessages empties the buffer and returns what it held.
func (s *Store) TakeMessages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state.Messages
	s.state.Messages = []protocol.Message{}
	return prev
}

// RestoreMessages puts back a buffer taken by TakeMessages, trimmed to the
// page size. It does nothing if messages arrived since and reports whether
// the buffer was restored.
func (s *Store) RestoreMessages(msgs []protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.Messages) > 0 {
		return false
	}
	if len(msgs) > s.state.PageSize {
		msgs = msgs[:s.state.PageSize]
	}
	s.state.Messages = append([]protocol.Message{}, msgs...)
	return true
}

func (s *Store) AddFilter(f UIFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Filters = append(s.state.Filters, f)
}

// RemoveFilter removes the first filter equal to f and reports whether one was found.
func (s *Store) RemoveFilter(f UIFilter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.state.Filters {
		if existing == f {
			next := make([]UIFilter, 0, len(s.state.Filters)-1)
			next = append(next, s.state.Filters[:i]...)
			next = append(next, s.state.Filters[i+1:]...)
			s.state.Filters = next
			return true
		}
	}
	return false
}

func (s *Store) ToggleRequesting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsRequesting = !s.state.IsRequesting
}

// SetRequesting sets the flag and reports whether it changed.
func (s *Store) SetRequesting(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.state.IsRequesting != v
	s.state.IsRequesting = v
	return changed
}

// Accessors.

func (s *Store) PageSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.PageSize
}

func (s *Store) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Message(nil), s.state.Messages...)
}

func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.state.Topics...)
}

func (s *Store) Topic() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SelectedTopic
}

func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ConnectionOpen
}

func (s *Store) Filters() []UIFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]UIFilter(nil), s.state.Filters...)
}

func (s *Store) IsRequesting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsRequesting
}

func (s *Store) TotalSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TotalSize
}

func (s *Store) TotalPages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TotalPages()
}

// Sender returns the bound send capability, nil while disconnected.
func (s *Store) Sender() Sender {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sender
}

func (s *Store) Snapshot() ApplicationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}
