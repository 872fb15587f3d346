// Package types defines the core data structures shared by the chat service,
// its conversation stores, and the inference dispatch layer.
package types

import "time"

// Message roles. The stored log only ever contains these two; the persona
// prompt is synthesized at dispatch time and never persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single persisted conversation entry. Messages are immutable
// once written and their order within a session log is chronological.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage builds a Message stamped with the given time in RFC 3339 UTC.
func NewMessage(role, content string, at time.Time) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// ChatRequest is the inbound payload for POST /chat. SessionID is optional;
// a fresh one is generated when absent.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply payload for POST /chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Conversation is the payload for GET /conversation/{session_id}: the stored
// log returned verbatim.
type Conversation struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}
