package protocol

// Request names understood by the server.
const (
	RequestMessages = "messages"
	RequestTopics   = "topics"
)

// Wire operator codes.
const (
	OpEq = "eq"
	OpGt = "gt"
	OpLt = "lt"
	OpLe = "le"
	OpGe = "ge"
)

// Parameter names the client fills in itself.
const (
	ParamTopic  = "topic"
	ParamOffset = "offset"
)

// WireFilter is a filter predicate in the server's operator vocabulary.
type WireFilter struct {
	Parameter string `json:"parameter"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
}

// MessageRequest is the outbound fetch payload.
type MessageRequest struct {
	Request   string       `json:"request"`
	Filters   []WireFilter `json:"filters"`
	Size      int          `json:"size"`
	RequestID string       `json:"request_id,omitempty"`
}

// TopicsRequest asks the server to announce its topics.
type TopicsRequest struct {
	Request string `json:"request"`
}

// NewTopicsRequest returns the payload that primes the topic list.
func NewTopicsRequest() TopicsRequest {
	return TopicsRequest{Request: RequestTopics}
}
