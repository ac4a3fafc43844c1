package domain

import "github.com/google/uuid"

type SendMessageCommand struct {
	ConversationID uuid.UUID `validate:"required"`
	SenderID       string    `validate:"required"`
	Body           string
}

type MarkReadCommand struct {
	MessageID uuid.UUID `validate:"required"`
	ReaderID  string    `validate:"required"`
}
