package model

import "time"

// ChatMessage is one message in a conversation, as exchanged with callers.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// SessionEntry is one record of the append-only session log in Redis, keyed
// by (tenant, sessionID). Seq is assigned by the recorder; the current session
// is a fold over the log in Seq order.
type SessionEntry struct {
	Seq       int64     `json:"seq"`
	RequestID string    `json:"requestId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the body of the chat completion endpoint.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	APIKey    string        `json:"apiKey,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
}
