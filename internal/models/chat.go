package models

import "time"

// Turn roles within a conversation transcript.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Turn is a single message in a conversation, attributed to the user or the bot.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Inputs    string `json:"inputs"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply produced for a chat exchange.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id,omitempty"`
}

// HistoryResponse is the transcript of one session.
type HistoryResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// ErrorResponse carries the fixed client-facing reason string.
type ErrorResponse struct {
	Error string `json:"error"`
}
