//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"dm-core/domain"
	"dm-core/domain/event"
	"reflect"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes realtime events delivered by the bus. Consume runs on
// the subscription's dispatch goroutine, never on the publisher's.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IConversationRepository interface {
	FindOrCreate(userA, userB string) (domain.Conversation, bool, error)
	Get(id uuid.UUID) (domain.Conversation, error)
	ListForUser(userID string) ([]domain.Conversation, error)
	Touch(id uuid.UUID, at time.Time) error
}

type IMessageRepository interface {
	Append(conversationID uuid.UUID, senderID, body string) (domain.Message, error)
	List(conversationID uuid.UUID) ([]domain.Message, error)
	Latest(conversationID uuid.UUID) (*domain.Message, error)
	Get(id uuid.UUID) (domain.Message, error)
	MarkRead(id uuid.UUID) (domain.Message, error)
}

type IPresenceTracker interface {
	SetOnline(userID string)
	SetOffline(userID string)
	Touch(userID string)
	IsOnline(userID string) bool
	Snapshot(userID string) domain.Presence
}
