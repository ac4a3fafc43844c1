// Package domain contains core concepts of the messaging system.
// This file defines Message events and related rules.
// Messages are immutable once appended, except for the read flag.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength bounds the trimmed body of a message.
const MaxBodyLength = 5000

// Message represents a chat event inside a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Body           string
	CreatedAt      time.Time
	Read           bool
}

// NewMessageID returns a time-ordered identifier (UUID v7), so ids sort
// in creation order.
func NewMessageID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// MessagePreview is the denormalized last-message view embedded in
// conversation summaries.
type MessagePreview struct {
	Body      string
	CreatedAt time.Time
}

func (m Message) Preview() MessagePreview {
	return MessagePreview{Body: m.Body, CreatedAt: m.CreatedAt}
}
