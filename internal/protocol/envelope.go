package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrMalformedEnvelope is returned for inbound frames that are not JSON or
// carry none of the known envelope shapes.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Kind discriminates inbound envelopes by which field is present.
type Kind int

const (
	KindUnknown Kind = iota
	KindTopic
	KindMessage
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindTopic:
		return "topic"
	case KindMessage:
		return "message"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Envelope is one inbound frame. Exactly one field is expected to be set.
type Envelope struct {
	Topic    *TopicAnnouncement `json:"topic,omitempty"`
	Message  *Message           `json:"message,omitempty"`
	Response *Response          `json:"response,omitempty"`
}

// TopicAnnouncement is sent once per topic known to the server.
type TopicAnnouncement struct {
	Topic string `json:"topic"`
}

// Response acknowledges the end of a messages request. Servers that do not
// send it leave the client to release the request on timeout.
type Response struct {
	RequestID string `json:"request_id"`
	Count     int    `json:"count,omitempty"`
}

// Kind reports the envelope shape. Topic wins over message.
func (e Envelope) Kind() Kind {
	switch {
	case e.Topic != nil && e.Topic.Topic != "":
		return KindTopic
	case e.Message != nil:
		return KindMessage
	case e.Response != nil:
		return KindResponse
	default:
		return KindUnknown
	}
}

// DecodeEnvelope parses a raw frame. Frames of unknown shape return the
// decoded envelope together with ErrMalformedEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return env, errors.Wrap(ErrMalformedEnvelope, "empty frame")
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.Wrapf(ErrMalformedEnvelope, "decode: %v", err)
	}
	if env.Kind() == KindUnknown {
		return env, errors.Wrap(ErrMalformedEnvelope, "no topic, message or response field")
	}
	return env, nil
}
