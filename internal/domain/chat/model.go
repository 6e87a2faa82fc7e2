// Package chat stores per-user assistant conversations and proxies them to
// the language-model backend. The backend sees only text; voice I/O lives
// entirely in the browser.
package chat

import (
	"time"

	"github.com/google/uuid"
)

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// ChatMessage is one transcript entry, scoped to the submitting user and
// ordered by timestamp.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"uid"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
