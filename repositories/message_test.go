package repositories

import (
	apperrors "dm-core/errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Append_And_List_ChronologicalOrder(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversationID := uuid.New()

	// When messages are appended in rapid succession
	first, err := repository.Append(conversationID, "alice", "hello")
	req.NoError(err)
	second, err := repository.Append(conversationID, "bob", "hi there")
	req.NoError(err)
	third, err := repository.Append(conversationID, "alice", "how are you?")
	req.NoError(err)

	// Then timestamps are strictly increasing even if the wall clock
	// did not move between appends
	req.True(first.CreatedAt.Before(second.CreatedAt))
	req.True(second.CreatedAt.Before(third.CreatedAt))

	// And the history comes back in exactly that order
	messages, err := repository.List(conversationID)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal([]uuid.UUID{first.ID, second.ID, third.ID},
		[]uuid.UUID{messages[0].ID, messages[1].ID, messages[2].ID})
}

func Test_List_IsolatesConversations(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversation1 := uuid.New()
	conversation2 := uuid.New()

	message, err := repository.Append(conversation1, "alice", "for conversation one")
	req.NoError(err)
	_, err = repository.Append(conversation2, "clara", "for conversation two")
	req.NoError(err)

	messages, err := repository.List(conversation1)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(message.ID, messages[0].ID)
}

func Test_Latest_ReturnsNewestMessage(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversationID := uuid.New()

	// Given an empty conversation
	latest, err := repository.Latest(conversationID)
	req.NoError(err)
	req.Nil(latest)

	_, err = repository.Append(conversationID, "alice", "older")
	req.NoError(err)
	newest, err := repository.Append(conversationID, "bob", "newest")
	req.NoError(err)

	latest, err = repository.Latest(conversationID)
	req.NoError(err)
	req.NotNil(latest)
	req.Equal(newest.ID, latest.ID)
	req.Equal("newest", latest.Body)
}

func Test_MarkRead_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversationID := uuid.New()

	message, err := repository.Append(conversationID, "alice", "read me")
	req.NoError(err)
	req.False(message.Read)

	// When the flag is flipped twice
	read, err := repository.MarkRead(message.ID)
	req.NoError(err)
	req.True(read.Read)

	read, err = repository.MarkRead(message.ID)
	req.NoError(err)
	req.True(read.Read)

	fetched, err := repository.Get(message.ID)
	req.NoError(err)
	req.True(fetched.Read)
}

func Test_Get_And_MarkRead_UnknownMessage(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())

	_, err := repository.Get(uuid.New())
	req.ErrorIs(err, apperrors.ErrNotFound)

	_, err = repository.MarkRead(uuid.New())
	req.ErrorIs(err, apperrors.ErrNotFound)
}
