// Package protocol defines the messages exchanged between the relay and the
// execution agent over the channel.
//
// Every frame is a JSON object of the form {"event": <name>, "data": <payload>}.
// The agent may use either the current event names or the legacy names of the
// original socket transport; both decode to the same message types.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names a message on the channel
type Event string

const (
	EventArtifactPush         Event = "artifact-push"
	EventSuiteDeclared        Event = "suite-declared"
	EventLog                  Event = "log-event"
	EventOutcome              Event = "outcome"
	EventSuiteCompleted       Event = "suite-completed"
	EventSuiteResultsComplete Event = "suite-results-complete"
	EventManualDisconnect     Event = "manual-disconnect"
)

// Legacy event names
const (
	LegacyArtifactPush     Event = "sendHtml"
	LegacySuiteDeclared    Event = "infoTestSuite"
	LegacyLog              Event = "logger"
	LegacyOutcome          Event = "result"
	LegacySuiteCompleted   Event = "doneSuite"
	LegacyManualDisconnect Event = "manual-disconnection"
)

var legacyAliases = map[Event]Event{
	LegacyArtifactPush:     EventArtifactPush,
	LegacySuiteDeclared:    EventSuiteDeclared,
	LegacyLog:              EventLog,
	LegacyOutcome:          EventOutcome,
	LegacySuiteCompleted:   EventSuiteCompleted,
	LegacyManualDisconnect: EventManualDisconnect,
}

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrEmptyEvent   = errors.New("message has no event name")
)

// Canonical resolves legacy aliases to the current event name
func Canonical(e Event) Event {
	if c, ok := legacyAliases[e]; ok {
		return c
	}
	return e
}

// Conn is a live agent connection that messages can be pushed to
type Conn interface {
	ID() string
	Send(msg []byte) error
}

// Message is a decoded inbound agent message
type Message interface {
	Event() Event
}

// Envelope is the outer JSON frame of every message
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame into one of the inbound message types
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, ErrEmptyEvent
	}

	var msg Message
	switch Canonical(env.Event) {
	case EventSuiteDeclared:
		msg = &SuiteDeclared{}
	case EventLog:
		msg = &LogEvent{}
	case EventOutcome:
		msg = &Outcome{}
	case EventSuiteCompleted:
		return &SuiteCompleted{}, nil
	case EventSuiteResultsComplete:
		msg = &SuiteResultsComplete{}
	case EventManualDisconnect:
		return &ManualDisconnect{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return msg, nil
	}
	if err := json.Unmarshal(env.Data, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
	}
	return msg, nil
}

// Encode wraps a payload into an envelope
func Encode(event Event, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
