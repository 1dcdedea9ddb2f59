// Package model defines data structures for the chat broker.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a turn's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one role-tagged message in a conversation. Turns are immutable once created.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn creates a turn with a fresh time-ordered ID.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// TurnRecord is a turn as mirrored to the transcript stream.
type TurnRecord struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model,omitempty"`
	Turn      Turn   `json:"turn"`

	// Populated on read
	Sequence uint64 `json:"sequence,omitempty"`
}
