package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dm-core/contract"
	"dm-core/domain/event"
	apperrors "dm-core/errors"

	"github.com/google/uuid"
)

// Bus broadcasts domain events to the subscriptions of a topic.
//
// It provides best-effort fan-out: at-most-once per subscription per event,
// per-topic publish order, no durability, no replay. A subscriber that
// (re)connects must pull current state from the stores before relying on
// live events.
//
// Bus is safe for concurrent use by multiple goroutines.
type Bus struct {
	log         *slog.Logger
	registry    *Registry
	bufferSize  int
	sinkTimeout time.Duration
}

func NewBus(log *slog.Logger, registry *Registry, bufferSize int, sinkTimeout time.Duration) *Bus {
	return &Bus{
		log:         log,
		registry:    registry,
		bufferSize:  bufferSize,
		sinkTimeout: sinkTimeout,
	}
}

// Subscription is the handle returned by Subscribe. Events are handed to
// the sink on a dedicated dispatch goroutine, so a slow or blocked sink
// delays only its own queue and never the publisher or other subscribers.
type Subscription struct {
	id     uuid.UUID
	topic  event.Topic
	sink   contract.EventSink
	events chan event.DomainEvent
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (s *Subscription) Topic() event.Topic {
	return s.topic
}

// offer enqueues an event without ever blocking the publisher. A full
// buffer drops the event, a closed subscription reports the stale handle.
func (s *Subscription) offer(e event.DomainEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, apperrors.ErrSubscriptionClosed
	}
	select {
	case s.events <- e:
		return true, nil
	default:
		return false, nil
	}
}

func (b *Bus) Subscribe(topic event.Topic, sink contract.EventSink) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		topic:  topic,
		sink:   sink,
		events: make(chan event.DomainEvent, b.bufferSize),
		done:   make(chan struct{}),
	}
	b.registry.Add(sub)

	sub.wg.Add(1)
	go b.dispatch(sub)
	return sub
}

// Publish delivers the event to every subscription currently active on the
// topic. Zero subscribers is a normal, silent case. Events are enqueued in
// publish order, so each sink observes the topic's events in order.
func (b *Bus) Publish(topic event.Topic, e event.DomainEvent) {
	for _, sub := range b.registry.SubscriptionsFor(topic) {
		delivered, err := sub.offer(e)
		if err != nil {
			// Stale handle caught mid-teardown, not fatal.
			continue
		}
		if !delivered {
			b.log.Debug("Realtime event lost, subscriber too slow", "topic", topic)
		}
	}
}

// Unsubscribe tears down the registration. It is idempotent and only
// returns once the dispatch goroutine has stopped, so no event is handed to
// the sink after Unsubscribe returns.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	close(sub.done)
	sub.mu.Unlock()

	b.registry.Remove(sub)
	sub.wg.Wait()
}

func (b *Bus) dispatch(sub *Subscription) {
	defer sub.wg.Done()
	for {
		// Teardown wins over buffered events.
		select {
		case <-sub.done:
			return
		default:
		}

		select {
		case <-sub.done:
			return
		case e := <-sub.events:
			ctx, cancel := context.WithTimeout(context.Background(), b.sinkTimeout)
			if err := sub.sink.Consume(ctx, e); err != nil {
				b.log.Debug("Sink rejected event", "topic", sub.topic, "error", err)
			}
			cancel()
		}
	}
}
