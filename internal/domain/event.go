package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of progress event emitted during an ask.
type EventType string

const (
	EventStep          EventType = "step"
	EventToolStart     EventType = "tool_start"
	EventAgentThinking EventType = "agent_thinking"
	EventAgentResponse EventType = "agent_response"
	EventInfo          EventType = "info"
	EventError         EventType = "error"
	EventSuccess       EventType = "success"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AskID     string          `json:"ask_id,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	Text      string          `json:"text,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ToolStartPayload accompanies EventToolStart.
type ToolStartPayload struct {
	Kind     DirectiveKind `json:"kind"`
	Argument string        `json:"argument,omitempty"`
	Turn     int           `json:"turn"`
	Allowed  bool          `json:"allowed"`
}

// ResponsePayload accompanies EventAgentResponse.
type ResponsePayload struct {
	Model     string `json:"model"`
	Role      string `json:"role"`
	Reasoning string `json:"reasoning,omitempty"`
	Error     string `json:"error,omitempty"`
	Tokens    int    `json:"tokens,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for progress events.
// Publish never blocks the publisher.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains queued events and prevents new publishes.
	Close()
}
