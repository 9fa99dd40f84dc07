package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidOffset is returned when a message carries no usable offset.
var ErrInvalidOffset = errors.New("invalid message offset")

// Message is one record pushed by the server. Only the offset and topic are
// interpreted; every field is kept in Fields and the original bytes in Raw so
// the view can show the record unchanged.
type Message struct {
	Topic  string
	Offset int
	Fields map[string]any
	Raw    json.RawMessage
}

// UnmarshalJSON accepts the offset as a JSON number or as a decimal string,
// the server formats it as a string.
func (m *Message) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return errors.Wrap(err, "decode message")
	}

	offset, err := parseOffset(fields["offset"])
	if err != nil {
		return err
	}

	topic, _ := fields["topic"].(string)

	m.Topic = topic
	m.Offset = offset
	m.Fields = fields
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the original bytes when the message came off the wire.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	out := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["offset"] = m.Offset
	if m.Topic != "" {
		out["topic"] = m.Topic
	}
	return json.Marshal(out)
}

// Field returns a top level field rendered as text, and whether it exists.
func (m Message) Field(name string) (string, bool) {
	v, ok := m.Fields[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func parseOffset(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidOffset, "%q", t.String())
		}
		return n, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidOffset, "%q", t)
		}
		return n, nil
	case nil:
		return 0, errors.Wrap(ErrInvalidOffset, "missing")
	default:
		return 0, errors.Wrapf(ErrInvalidOffset, "unexpected type %T", v)
	}
}
