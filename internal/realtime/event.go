package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"
)

// ErrInvalidEvent is the only error Publish returns to its caller
var ErrInvalidEvent = errors.New("invalid event")

// Kind is the event type written on the `event:` line of the stream
type Kind string

const (
	KindConnected           Kind = "connected"
	KindPing                Kind = "ping"
	KindMessageCreated      Kind = "message-created"
	KindConversationUpdated Kind = "conversation-updated"
	KindTyping              Kind = "typing"
	KindReadReceipt         Kind = "read-receipt"
)

var kindPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Valid reports whether k is a lowercase-kebab identifier. Kinds outside the
// known set are forwarded verbatim.
func (k Kind) Valid() bool {
	return kindPattern.MatchString(string(k))
}

// Reserved reports whether the kind is emitted only by the session itself
func (k Kind) Reserved() bool {
	return k == KindConnected || k == KindPing
}

// Scope addresses either one routing key or every connected channel
type Scope struct {
	RoutingKey string `json:"routingKey,omitempty"`
	Broadcast  bool   `json:"broadcast,omitempty"`
}

// ToKey scopes an event to a single routing key
func ToKey(key string) Scope { return Scope{RoutingKey: key} }

// Everyone scopes an event to every connected channel
func Everyone() Scope { return Scope{Broadcast: true} }

func (s Scope) valid() bool {
	if s.Broadcast {
		return s.RoutingKey == ""
	}
	_, _, ok := ParseKey(s.RoutingKey)
	return ok
}

// Target is the metrics label of the scope
func (s Scope) Target() string {
	switch {
	case s.Broadcast:
		return "broadcast"
	case IsUserKey(s.RoutingKey):
		return "user"
	default:
		return "tenant"
	}
}

func (s Scope) String() string {
	if s.Broadcast {
		return "*"
	}
	return s.RoutingKey
}

// Event is immutable once built; share it freely between channels.
type Event struct {
	Type      Kind            `json:"type"`
	Scope     Scope           `json:"scope"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals payload and stamps the event. A nil payload becomes {}.
func NewEvent(kind Kind, scope Scope, payload any) (*Event, error) {
	data := []byte("{}")
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEvent, err)
		}
	}
	ev := &Event{
		Type:      kind,
		Scope:     scope,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Validate checks kind and scope of an event built by hand or decoded from the bus
func (e *Event) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil", ErrInvalidEvent)
	case !e.Type.Valid():
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, e.Type)
	case !e.Scope.valid():
		return fmt.Errorf("%w: scope must name a routing key or broadcast", ErrInvalidEvent)
	case len(e.Payload) > 0 && !json.Valid(e.Payload):
		return fmt.Errorf("%w: payload is not JSON", ErrInvalidEvent)
	}
	return nil
}

func (e *Event) payload() []byte {
	if len(e.Payload) == 0 {
		return []byte("{}")
	}
	return e.Payload
}

// WriteSSE writes the event in text/event-stream framing:
//
//	event: <type>
//	data: <json-payload>
func (e *Event) WriteSSE(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(string(e.Type))
	buf.WriteString("\ndata: ")
	// multi-line payloads would break framing
	if err := json.Compact(&buf, e.payload()); err != nil {
		return err
	}
	buf.WriteString("\n\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// Envelope is the frame used by transports without event-stream framing
type Envelope struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Envelope returns the {type, payload, timestamp} frame of the event
func (e *Event) Envelope() Envelope {
	return Envelope{Type: e.Type, Payload: e.payload(), Timestamp: e.Timestamp}
}
