package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TopicPrefix namespaces every topic the storefront publishes.
const TopicPrefix = "ecommerce"

// Topic returns "<prefix>.<domain>.<action>".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}

// Event is the envelope every storefront message is wrapped in. Data holds
// the event-specific payload undecoded.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

var errMissingEventID = errors.New("event_id is empty")

// DecodeEvent parses an envelope. Envelopes without an id are rejected since
// deduplication keys on it.
func DecodeEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.EventID == "" {
		return nil, fmt.Errorf("decode event: %w", errMissingEventID)
	}
	return &ev, nil
}

// Encode serializes the envelope.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
