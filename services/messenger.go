//go:generate go run go.uber.org/mock/mockgen -source=messenger.go -destination=../mocks/mock_messenger_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"strings"

	"dm-core/contract"
	"dm-core/domain"
	"dm-core/domain/event"
	apperrors "dm-core/errors"
	"dm-core/runtime"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// IMessengerService is the query facade external collaborators call. It
// composes the conversation directory, the message store, the presence
// tracker and the event bus; it owns no state of its own.
type IMessengerService interface {
	StartOrGetConversation(ctx context.Context, userA, userB string) (domain.Conversation, error)
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	ListConversations(userID string) ([]domain.ConversationSummary, error)
	ListMessages(requesterID string, conversationID uuid.UUID) ([]domain.Message, error)
	MarkRead(cmd domain.MarkReadCommand) (domain.Message, error)
	Subscribe(topic event.Topic, sink contract.EventSink) *runtime.Subscription
	Unsubscribe(sub *runtime.Subscription)
}

type MessengerService struct {
	log           *slog.Logger
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
	presence      contract.IPresenceTracker
	bus           *runtime.Bus
	validate      *validator.Validate
}

func NewMessengerService(
	log *slog.Logger,
	conversations contract.IConversationRepository,
	messages contract.IMessageRepository,
	presence contract.IPresenceTracker,
	bus *runtime.Bus,
) *MessengerService {
	return &MessengerService{
		log:           log,
		conversations: conversations,
		messages:      messages,
		presence:      presence,
		bus:           bus,
		validate:      validator.New(),
	}
}

// StartOrGetConversation resolves the conversation for the pair, creating
// it atomically on first contact. Concurrent callers racing on the same
// pair all converge on the same conversation id.
func (s *MessengerService) StartOrGetConversation(ctx context.Context, userA, userB string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}

	conv, created, err := s.conversations.FindOrCreate(userA, userB)
	if err != nil {
		return domain.Conversation{}, err
	}
	if created {
		s.log.Info("Conversation started", "id", conv.ID)
		evt := event.ConversationStarted{Conversation: conv}
		s.bus.Publish(event.UserTopic(conv.ParticipantA), evt)
		s.bus.Publish(event.UserTopic(conv.ParticipantB), evt)
	}
	return conv, nil
}

// SendMessage validates, persists, bumps the recency index, then publishes.
// Publishing strictly after the append means a subscriber can never observe
// a message on the bus before a direct fetch would return it.
func (s *MessengerService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, err
	}

	body := strings.TrimSpace(cmd.Body)
	if err := s.validate.Var(body, "required,max=5000"); err != nil {
		return domain.Message{}, apperrors.ErrInvalidBody
	}

	conv, err := s.conversations.Get(cmd.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conv.HasParticipant(cmd.SenderID) {
		return domain.Message{}, apperrors.ErrNotAParticipant
	}

	message, err := s.messages.Append(conv.ID, cmd.SenderID, body)
	if err != nil {
		return domain.Message{}, err
	}
	if err = s.conversations.Touch(conv.ID, message.CreatedAt); err != nil {
		// Recency index only; the message itself is already durable.
		s.log.Warn("Failed to bump conversation activity", "conversation", conv.ID, "error", err)
	}

	evt := event.MessageCreated{Message: message}
	s.bus.Publish(event.ConversationTopic(conv.ID), evt)
	s.bus.Publish(event.UserTopic(conv.ParticipantA), evt)
	s.bus.Publish(event.UserTopic(conv.ParticipantB), evt)
	return message, nil
}

// ListConversations joins the three stores into per-conversation summaries:
// peer id, last-message preview and peer presence. The join is computed
// snapshot-style, without any cross-component lock, so it is best-effort
// consistent by design.
func (s *MessengerService) ListConversations(userID string) ([]domain.ConversationSummary, error) {
	conversations, err := s.conversations.ListForUser(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		peerID := conv.Peer(userID)

		var preview *domain.MessagePreview
		latest, err := s.messages.Latest(conv.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			preview = lo.ToPtr(latest.Preview())
		}

		summaries = append(summaries, domain.ConversationSummary{
			Conversation: conv,
			PeerID:       peerID,
			Preview:      preview,
			PeerOnline:   s.presence.IsOnline(peerID),
		})
	}
	return summaries, nil
}

// ListMessages returns the ascending full history of a conversation the
// requester participates in.
func (s *MessengerService) ListMessages(requesterID string, conversationID uuid.UUID) ([]domain.Message, error) {
	conv, err := s.conversations.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apperrors.ErrNotAParticipant
	}
	return s.messages.List(conversationID)
}

// MarkRead flips the read flag for a participant of the message's
// conversation. Already-read messages are a silent no-op.
func (s *MessengerService) MarkRead(cmd domain.MarkReadCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, err
	}

	message, err := s.messages.Get(cmd.MessageID)
	if err != nil {
		return domain.Message{}, err
	}
	conv, err := s.conversations.Get(message.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conv.HasParticipant(cmd.ReaderID) {
		return domain.Message{}, apperrors.ErrNotAParticipant
	}
	return s.messages.MarkRead(cmd.MessageID)
}

func (s *MessengerService) Subscribe(topic event.Topic, sink contract.EventSink) *runtime.Subscription {
	return s.bus.Subscribe(topic, sink)
}

func (s *MessengerService) Unsubscribe(sub *runtime.Subscription) {
	s.bus.Unsubscribe(sub)
}
