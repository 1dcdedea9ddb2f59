package model

import (
	"time"
)

// EventType represents the type of session event.
type EventType string

const (
	EventTypeError   EventType = "error"
	EventTypeCleared EventType = "cleared"
	EventTypeEmpty   EventType = "empty_reply"
)

// SessionEvent represents something that happened in a session other than a turn.
type SessionEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"type"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
