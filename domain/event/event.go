package event

import (
	"dm-core/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic is an addressable scope on which realtime events are published:
// either a specific conversation or a specific user ("any conversation
// involving me" plus presence transitions of that user).
type Topic string

func ConversationTopic(id uuid.UUID) Topic {
	return Topic(fmt.Sprintf("conversation:%s", id))
}

func UserTopic(userID string) Topic {
	return Topic(fmt.Sprintf("user:%s", userID))
}

type DomainEvent interface {
	OccurredAt() time.Time
}

// MessageCreated is published after the message is durably persisted,
// on the conversation topic and on both participant user topics.
type MessageCreated struct {
	Message domain.Message
}

func (e MessageCreated) OccurredAt() time.Time {
	return e.Message.CreatedAt
}

// ConversationStarted is published to both participant user topics when a
// pair converses for the first time.
type ConversationStarted struct {
	Conversation domain.Conversation
}

func (e ConversationStarted) OccurredAt() time.Time {
	return e.Conversation.LastActivity
}

// PresenceChanged is published on the user topic of the user whose status
// flipped, so viewers of a conversation with that user can react.
type PresenceChanged struct {
	UserID string
	Online bool
	At     time.Time
}

func (e PresenceChanged) OccurredAt() time.Time {
	return e.At
}
