// Package orchestrator owns chat sessions: per-session append-only
// history, a bounded event channel with drop-oldest overflow, subscriber
// fan-out with heartbeats, and the message-processing task that turns a
// user message into an ordered token stream with exactly one terminal
// event per correlation id.
package orchestrator

// EventType enumerates the chat event kinds.
type EventType string

const (
	EventToken            EventType = "token"
	EventMessageCompleted EventType = "message.completed"
	EventError            EventType = "error"
	EventPing             EventType = "ping"
)

// ChatEvent is one event on a session's stream.
type ChatEvent struct {
	Type          EventType `json:"type"`
	SessionID     string    `json:"sessionId"`
	Content       string    `json:"content,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}

// Terminal reports whether e ends its correlation's stream. Terminal
// events are never evicted by the bounded channel.
func (e ChatEvent) Terminal() bool {
	return e.Type == EventMessageCompleted || e.Type == EventError
}
