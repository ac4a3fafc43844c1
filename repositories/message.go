//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	apperrors "dm-core/errors"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dm-core/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu       sync.Mutex
	lastNano int64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
	CreatedAt      int64  `json:"created_at"`
	Read           bool   `json:"read"`
}

// Key layout:
//
//	msg:{conversation_id}:{timestamp_padded}:{message_id} -> message record
//	ref:{message_id}                                      -> primary key
//
// The 19-digit zero padding makes lexicographical key order match
// chronological order, and the message id disambiguates the (impossible
// under the monotonic clock, but cheap to rule out) equal-timestamp case.
// The ref entry resolves a bare message id back to its primary key for
// point reads and the read-flag update.
func messageKey(conversationID uuid.UUID, nanos int64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, nanos, id))
}

func messagePrefix(conversationID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

func refKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("ref:%s", id))
}

// nextNano returns a strictly increasing timestamp. When the wall clock
// stalls or jumps backwards, it degenerates into a plain sequence counter,
// which keeps the per-conversation total order intact.
func (m *MessageRepository) nextNano() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC().UnixNano()
	if now <= m.lastNano {
		now = m.lastNano + 1
	}
	m.lastNano = now
	return now
}

// Append persists a new message at the tail of the conversation log and
// returns it. Participant and body validation belong to the caller; by the
// time Append runs the write is unconditional.
func (m *MessageRepository) Append(conversationID uuid.UUID, senderID, body string) (domain.Message, error) {
	message := domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Unix(0, m.nextNano()).UTC(),
	}

	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}
	primary := messageKey(conversationID, message.CreatedAt.UnixNano(), message.ID)

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, bytes); err != nil {
			return err
		}
		return txn.Set(refKey(message.ID), primary)
	})
	if err != nil {
		return domain.Message{}, transient(err)
	}
	return message, nil
}

// List returns the full history of a conversation in ascending
// chronological order. Thanks to the padded timestamp in the key, a plain
// forward prefix scan is already sorted.
func (m *MessageRepository) List(conversationID uuid.UUID) ([]domain.Message, error) {
	prefix := messagePrefix(conversationID)
	var messages []domain.Message

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskMessage
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &disk)
			})
			if err != nil {
				return err
			}
			message, err := toMessage(disk)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	return messages, nil
}

// Latest returns the most recent message of a conversation, or nil when the
// conversation has no messages yet. It seeks past the newest possible key
// and walks one step back with a reverse iterator.
func (m *MessageRepository) Latest(conversationID uuid.UUID) (*domain.Message, error) {
	prefix := messagePrefix(conversationID)
	var found *domain.Message

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var disk diskMessage
		err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &disk)
		})
		if err != nil {
			return err
		}
		message, err := toMessage(disk)
		if err != nil {
			return err
		}
		found = &message
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	return found, nil
}

func (m *MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getByRef(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, transient(err)
	}
	return message, nil
}

// MarkRead flips the read flag and returns the updated message. Calling it
// on an already-read message is a no-op, not an error.
func (m *MessageRepository) MarkRead(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		var err error
		message, err = getByRef(txn, id)
		if err != nil {
			return err
		}
		if message.Read {
			return nil
		}
		message.Read = true

		bytes, err := json.Marshal(fromMessage(message))
		if err != nil {
			return err
		}
		primary := messageKey(message.ConversationID, message.CreatedAt.UnixNano(), message.ID)
		return txn.Set(primary, bytes)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, transient(err)
	}
	return message, nil
}

func getByRef(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	ref, err := txn.Get(refKey(id))
	if err != nil {
		return domain.Message{}, err
	}
	var primary []byte
	err = ref.Value(func(v []byte) error {
		primary = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}

	item, err := txn.Get(primary)
	if err != nil {
		return domain.Message{}, err
	}
	var disk diskMessage
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &disk)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk)
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:             message.ID.String(),
		ConversationID: message.ConversationID.String(),
		SenderID:       message.SenderID,
		Body:           message.Body,
		CreatedAt:      message.CreatedAt.UnixNano(),
		Read:           message.Read,
	}
}

func toMessage(disk diskMessage) (domain.Message, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	conversationID, err := uuid.Parse(disk.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       disk.SenderID,
		Body:           disk.Body,
		CreatedAt:      time.Unix(0, disk.CreatedAt).UTC(),
		Read:           disk.Read,
	}, nil
}
