package model

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a short random identifier. Eight hex characters is
// comfortably unique for a process-lifetime registry and keeps ids
// readable in a terminal client.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:4])
}

// User is an identity record. Immutable after creation except Disabled.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Disabled bool   `json:"disabled"`
	Scopes   string `json:"scopes,omitempty"`
}

// Session is a named chat room: a membership set plus an append-only
// message history. Sessions live for the process lifetime.
type Session struct {
	ID      string    `json:"id"`
	Members []string  `json:"members"`
	History []Message `json:"message_history"`
}

// Message carries a full snapshot of the origin user, not a reference,
// so history stays meaningful if the user record later changes.
type Message struct {
	ID      string `json:"id"`
	Session string `json:"session"`
	Origin  User   `json:"origin"`
	Body    string `json:"message"`
	ReplyTo string `json:"reply_to,omitempty"`
}
