package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"dm-core/domain"
	"dm-core/domain/event"
	apperrors "dm-core/errors"
	"dm-core/repositories"
	"dm-core/runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type capturedEvents struct {
	arrived chan event.DomainEvent
}

func newCapturedEvents() *capturedEvents {
	return &capturedEvents{arrived: make(chan event.DomainEvent, 32)}
}

func (s *capturedEvents) Consume(_ context.Context, e event.DomainEvent) error {
	s.arrived <- e
	return nil
}

func (s *capturedEvents) next(t *testing.T) event.DomainEvent {
	t.Helper()
	select {
	case e := <-s.arrived:
		return e
	case <-time.After(1 * time.Second):
		require.Fail(t, "no event arrived in time")
		return nil
	}
}

func (s *capturedEvents) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-s.arrived:
		require.Failf(t, "unexpected event", "%+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestMessenger(t *testing.T) (*MessengerService, *runtime.PresenceTracker, *runtime.Bus) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	bus := runtime.NewBus(log, runtime.NewRegistry(), 16, 1*time.Second)
	tracker := runtime.NewPresenceTracker(log, bus)
	service := NewMessengerService(
		log,
		repositories.NewConversationRepository(db, log),
		repositories.NewMessageRepository(db, log),
		tracker,
		bus,
	)
	return service, tracker, bus
}

func Test_StartOrGetConversation_PairConvergesToOneConversation(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)
	ctx := context.Background()

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)

	// When many callers race on the same pair, in both orders
	const callers = 8
	ids := make(chan uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userA, userB := "alice", "bob"
			if i%2 == 1 {
				userA, userB = userB, userA
			}
			got, err := service.StartOrGetConversation(ctx, userA, userB)
			require.NoError(t, err)
			ids <- got.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	// Then every call returned the original conversation
	for id := range ids {
		req.Equal(conv.ID, id)
	}
}

func Test_StartOrGetConversation_RejectsSelf(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)

	_, err := service.StartOrGetConversation(context.Background(), "alice", "alice")
	req.ErrorIs(err, apperrors.ErrInvalidParticipants)
}

func Test_SendMessage_AliceAndBobScenario(t *testing.T) {
	req := require.New(t)
	service, tracker, _ := newTestMessenger(t)
	ctx := context.Background()

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)

	message, err := service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Body:           "hi",
	})
	req.NoError(err)
	req.Equal("hi", message.Body)
	req.False(message.Read)

	tracker.SetOnline("alice")

	// Then bob's listing shows the conversation with the preview and
	// alice's presence
	summaries, err := service.ListConversations("bob")
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal(conv.ID, summaries[0].Conversation.ID)
	req.Equal("alice", summaries[0].PeerID)
	req.True(summaries[0].PeerOnline)
	req.NotNil(summaries[0].Preview)
	req.Equal("hi", summaries[0].Preview.Body)
}

func Test_SendMessage_RejectsInvalidBody(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)
	ctx := context.Background()

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)

	// Whitespace-only body
	_, err = service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Body:           "   \n\t  ",
	})
	req.ErrorIs(err, apperrors.ErrInvalidBody)

	// Oversized body
	_, err = service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Body:           strings.Repeat("a", domain.MaxBodyLength+1),
	})
	req.ErrorIs(err, apperrors.ErrInvalidBody)

	// And nothing was appended
	messages, err := service.ListMessages("alice", conv.ID)
	req.NoError(err)
	req.Empty(messages)
}

func Test_SendMessage_RejectsStrangers(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)
	ctx := context.Background()

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)

	_, err = service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       "mallory",
		Body:           "let me in",
	})
	req.ErrorIs(err, apperrors.ErrNotAParticipant)

	messages, err := service.ListMessages("alice", conv.ID)
	req.NoError(err)
	req.Empty(messages)
}

func Test_SendMessage_UnknownConversation(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)

	_, err := service.SendMessage(context.Background(), domain.SendMessageCommand{
		ConversationID: uuid.New(),
		SenderID:       "alice",
		Body:           "hello?",
	})
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_ListMessages_PreservesSendOrder(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)
	ctx := context.Background()

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)

	bodies := []string{"first", "second", "third"}
	for _, body := range bodies {
		_, err = service.SendMessage(ctx, domain.SendMessageCommand{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Body:           body,
		})
		req.NoError(err)
	}

	messages, err := service.ListMessages("bob", conv.ID)
	req.NoError(err)
	req.Len(messages, len(bodies))
	for i, body := range bodies {
		req.Equal(body, messages[i].Body)
	}

	// And a stranger cannot read the history
	_, err = service.ListMessages("mallory", conv.ID)
	req.ErrorIs(err, apperrors.ErrNotAParticipant)
}

func Test_MarkRead_IdempotentAndGuarded(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)
	ctx := context.Background()

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)
	message, err := service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Body:           "read me",
	})
	req.NoError(err)

	// When bob reads the message twice
	read, err := service.MarkRead(domain.MarkReadCommand{MessageID: message.ID, ReaderID: "bob"})
	req.NoError(err)
	req.True(read.Read)

	read, err = service.MarkRead(domain.MarkReadCommand{MessageID: message.ID, ReaderID: "bob"})
	req.NoError(err)
	req.True(read.Read)

	// Then a stranger cannot flip flags
	_, err = service.MarkRead(domain.MarkReadCommand{MessageID: message.ID, ReaderID: "mallory"})
	req.ErrorIs(err, apperrors.ErrNotAParticipant)

	// And unknown messages surface as such
	_, err = service.MarkRead(domain.MarkReadCommand{MessageID: uuid.New(), ReaderID: "bob"})
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_Subscriber_ReceivesAppendedMessagesLive(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)
	ctx := context.Background()

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)

	// Given bob watches the conversation
	sink := newCapturedEvents()
	sub := service.Subscribe(event.ConversationTopic(conv.ID), sink)
	defer service.Unsubscribe(sub)

	message, err := service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Body:           "live",
	})
	req.NoError(err)

	evt, ok := sink.next(t).(event.MessageCreated)
	req.True(ok)
	req.Equal(message.ID, evt.Message.ID)
	req.Equal("live", evt.Message.Body)

	// And a subscriber arriving after delivery sees nothing retroactively
	late := newCapturedEvents()
	lateSub := service.Subscribe(event.ConversationTopic(conv.ID), late)
	defer service.Unsubscribe(lateSub)
	late.expectNone(t)
}

func Test_UserTopic_CoversAllConversationsOfAUser(t *testing.T) {
	req := require.New(t)
	service, _, _ := newTestMessenger(t)
	ctx := context.Background()

	// Given bob follows his own user topic only
	sink := newCapturedEvents()
	sub := service.Subscribe(event.UserTopic("bob"), sink)
	defer service.Unsubscribe(sub)

	conv, err := service.StartOrGetConversation(ctx, "alice", "bob")
	req.NoError(err)

	started, ok := sink.next(t).(event.ConversationStarted)
	req.True(ok)
	req.Equal(conv.ID, started.Conversation.ID)

	_, err = service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Body:           "ping",
	})
	req.NoError(err)

	created, ok := sink.next(t).(event.MessageCreated)
	req.True(ok)
	req.Equal("ping", created.Message.Body)
}
