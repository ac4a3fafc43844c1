// Package domain contains core concepts of the messaging system.
// This file defines Conversation entities and the canonical pair invariant.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"dm-core/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is the unique channel of messages between exactly two users.
// Participants are kept in canonical order (ParticipantA < ParticipantB) so
// the pair identifies the conversation regardless of who initiated contact.
type Conversation struct {
	ID           uuid.UUID
	ParticipantA string
	ParticipantB string
	LastActivity time.Time
}

// CanonicalPair orders two user ids deterministically, smaller id first.
func CanonicalPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

// PairKey is the system-wide uniqueness key of an unordered participant pair.
func PairKey(userA, userB string) (string, error) {
	if userA == "" || userB == "" || userA == userB {
		return "", errors.ErrInvalidParticipants
	}
	a, b := CanonicalPair(userA, userB)
	return fmt.Sprintf("%s|%s", a, b), nil
}

func NewConversation(userA, userB string, at time.Time) (Conversation, error) {
	if _, err := PairKey(userA, userB); err != nil {
		return Conversation{}, err
	}
	a, b := CanonicalPair(userA, userB)
	return Conversation{
		ID:           uuid.New(),
		ParticipantA: a,
		ParticipantB: b,
		LastActivity: at,
	}, nil
}

func (c Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}

// Peer returns the other participant, or "" when userID is not part of the
// conversation.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// ConversationSummary is the read-side join returned by conversation
// listings: the peer, the most recent message preview and the peer presence.
// It is computed at read time and never stored.
type ConversationSummary struct {
	Conversation Conversation
	PeerID       string
	Preview      *MessagePreview
	PeerOnline   bool
}
