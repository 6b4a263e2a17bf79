// Package event defines the event model flowing through the ordering layer
// and the canonical serialization used for content-addressed event ids.
package event

import (
	"fmt"

	"github.com/causewayio/causeway/internal/hlc"
)

// Metadata carries the ordering-relevant flags attached to an event.
//
// Bypass skips the reordering buffer unconditionally. PrioritySignal marks
// the high-urgency class; once Intensity crosses the buffer's configured
// threshold the event is delivered immediately, trading ordering for
// latency. Category routes the event inside a partitioned buffer.
type Metadata struct {
	Bypass         bool    `json:"bypass,omitempty" yaml:"bypass,omitempty"`
	PrioritySignal bool    `json:"priority_signal,omitempty" yaml:"priority_signal,omitempty"`
	Intensity      float64 `json:"intensity,omitempty" yaml:"intensity,omitempty"`
	Category       string  `json:"category,omitempty" yaml:"category,omitempty"`
}

// Event is the unit of delivery. Events are ephemeral: stamped by a
// producer, owned by exactly one buffer while in flight, and dropped after
// delivery or a duplicate/overflow decision.
type Event struct {
	ID        string         `json:"id" yaml:"id"`
	Timestamp hlc.Timestamp  `json:"timestamp" yaml:"timestamp"`
	Topic     string         `json:"topic" yaml:"topic"`
	Payload   map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	Metadata  Metadata       `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// New stamps a fresh event with the clock's next timestamp and derives its
// content-addressed id from the canonical payload serialization.
func New(clock *hlc.Clock, topic string, payload map[string]any, md Metadata) (*Event, error) {
	ts := clock.Now()
	return Stamped(ts, topic, payload, md)
}

// Stamped builds an event around an existing timestamp. Used when the
// stamp came from a remote producer and has already been merged via
// Clock.Update.
func Stamped(ts hlc.Timestamp, topic string, payload map[string]any, md Metadata) (*Event, error) {
	content, err := MarshalCanonical(payload)
	if err != nil {
		return nil, fmt.Errorf("event: canonical payload: %w", err)
	}
	return &Event{
		ID:        hlc.EventID(ts, content),
		Timestamp: ts,
		Topic:     topic,
		Payload:   payload,
		Metadata:  md,
	}, nil
}
