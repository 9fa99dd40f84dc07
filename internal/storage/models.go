package storage

import (
	"encoding/json"
	"time"

	"github.com/pders01/streamview/internal/protocol"
)

// Record is one captured message as stored in the archive.
type Record struct {
	Topic      string          `json:"topic"`
	Offset     int             `json:"offset"`
	Body       json.RawMessage `json:"body"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Message decodes the captured body back into a protocol message.
func (r *Record) Message() (protocol.Message, error) {
	var m protocol.Message
	if err := json.Unmarshal(r.Body, &m); err != nil {
		return protocol.Message{}, err
	}
	if m.Topic == "" {
		m.Topic = r.Topic
	}
	return m, nil
}

// TopicInfo is kept per topic seen in captured messages.
type TopicInfo struct {
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Messages  int       `json:"messages"`
}
