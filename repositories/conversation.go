//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	apperrors "dm-core/errors"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dm-core/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// maxTxnRetries bounds the insert-if-absent retry loop on transaction
// conflicts. Losing a conflict means another caller just created the row,
// so one extra round trip is normally enough.
const maxTxnRetries = 3

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

type diskConversation struct {
	ID           string `json:"id"`
	ParticipantA string `json:"participant_a"`
	ParticipantB string `json:"participant_b"`
	LastActivity int64  `json:"last_activity"`
}

// Key layout:
//
//	pair:{minID}|{maxID}          -> conversation id (pair uniqueness key)
//	conv:{conversation_id}        -> conversation record
//	member:{user_id}:{conv_id}    -> nil (per-user listing index)
func pairKey(key string) []byte {
	return []byte(fmt.Sprintf("pair:%s", key))
}

func convKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("conv:%s", id))
}

func memberKey(userID string, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", userID, id))
}

// FindOrCreate returns the conversation for the unordered pair, creating it
// when absent. The lookup and the insert happen inside a single Badger
// transaction keyed on the canonical pair, so two callers racing to start
// the same conversation cannot both create one: the loser's commit fails
// with a conflict and the retry finds the winner's row.
// The boolean reports whether this call created the conversation.
func (r ConversationRepository) FindOrCreate(userA, userB string) (domain.Conversation, bool, error) {
	key, err := domain.PairKey(userA, userB)
	if err != nil {
		return domain.Conversation{}, false, err
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		var conv domain.Conversation
		var created bool

		err = r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(key))
			switch {
			case err == nil:
				var id uuid.UUID
				err = item.Value(func(v []byte) error {
					id, err = uuid.Parse(string(v))
					return err
				})
				if err != nil {
					return err
				}
				conv, err = getConversation(txn, id)
				return err

			case errors.Is(err, badger.ErrKeyNotFound):
				conv, err = domain.NewConversation(userA, userB, time.Now().UTC())
				if err != nil {
					return err
				}
				if err = txn.Set(pairKey(key), []byte(conv.ID.String())); err != nil {
					return err
				}
				if err = setConversation(txn, conv); err != nil {
					return err
				}
				if err = txn.Set(memberKey(conv.ParticipantA, conv.ID), nil); err != nil {
					return err
				}
				if err = txn.Set(memberKey(conv.ParticipantB, conv.ID), nil); err != nil {
					return err
				}
				created = true
				return nil

			default:
				return err
			}
		})

		if errors.Is(err, badger.ErrConflict) {
			r.log.Debug("Pair creation conflict, retrying", "pair", key, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.Conversation{}, false, transient(err)
		}
		return conv, created, nil
	}
	return domain.Conversation{}, false, transient(badger.ErrConflict)
}

func (r ConversationRepository) Get(id uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversation(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, transient(err)
	}
	return conv, nil
}

// ListForUser returns every conversation the user participates in, most
// recently active first, ties broken by id. Ordering cannot rely on key
// order here because last_activity is mutable, so records are sorted after
// the prefix scan.
func (r ConversationRepository) ListForUser(userID string) ([]domain.Conversation, error) {
	prefix := []byte(fmt.Sprintf("member:%s:", userID))
	var conversations []domain.Conversation

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rawID := it.Item().Key()[len(prefix):]
			id, err := uuid.Parse(string(rawID))
			if err != nil {
				return err
			}
			conv, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}

	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].LastActivity.Equal(conversations[j].LastActivity) {
			return conversations[i].ID.String() < conversations[j].ID.String()
		}
		return conversations[i].LastActivity.After(conversations[j].LastActivity)
	})
	return conversations, nil
}

// Touch bumps last_activity. Stale timestamps are ignored so concurrent
// appends can only move the recency index forward.
func (r ConversationRepository) Touch(id uuid.UUID, at time.Time) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		conv, err := getConversation(txn, id)
		if err != nil {
			return err
		}
		if !at.After(conv.LastActivity) {
			return nil
		}
		conv.LastActivity = at
		return setConversation(txn, conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return transient(err)
	}
	return nil
}

func getConversation(txn *badger.Txn, id uuid.UUID) (domain.Conversation, error) {
	item, err := txn.Get(convKey(id))
	if err != nil {
		return domain.Conversation{}, err
	}
	var disk diskConversation
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &disk)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk)
}

func setConversation(txn *badger.Txn, conv domain.Conversation) error {
	bytes, err := json.Marshal(fromConversation(conv))
	if err != nil {
		return err
	}
	return txn.Set(convKey(conv.ID), bytes)
}

func fromConversation(conv domain.Conversation) diskConversation {
	return diskConversation{
		ID:           conv.ID.String(),
		ParticipantA: conv.ParticipantA,
		ParticipantB: conv.ParticipantB,
		LastActivity: conv.LastActivity.UnixNano(),
	}
}

func toConversation(disk diskConversation) (domain.Conversation, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:           id,
		ParticipantA: disk.ParticipantA,
		ParticipantB: disk.ParticipantB,
		LastActivity: time.Unix(0, disk.LastActivity).UTC(),
	}, nil
}

// transient tags storage failures the caller may retry.
func transient(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrTransientStore, err)
}
