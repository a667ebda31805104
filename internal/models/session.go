package models

import "time"

// ChatTurn is one stored conversation turn. Role is "user" or "assistant".
type ChatTurn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ChatSession holds the conversation history for one chat surface session.
// History is append-only; turns are never rewritten.
type ChatSession struct {
	ID        string     `badgerhold:"key"`
	ProgramID string     `json:"program_id,omitempty"`
	Turns     []ChatTurn `json:"turns"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
