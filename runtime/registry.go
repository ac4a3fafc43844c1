// Package runtime hosts the realtime machinery: the subscription registry,
// the event bus and the presence tracker. It orchestrates delivery without
// containing business logic or domain rules.
package runtime

import (
	"sync"

	"dm-core/domain/event"

	"github.com/google/uuid"
)

type subscriptionSet map[uuid.UUID]*Subscription

// Registry tracks which subscriptions are active on which topic. It only
// stores registrations; dispatching is the bus's job.
type Registry struct {
	mu     sync.RWMutex
	topics map[event.Topic]subscriptionSet
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[event.Topic]subscriptionSet)}
}

// SubscriptionsFor returns a snapshot of the active subscriptions on a
// topic. Returns nil if the topic has no subscribers, which publishers
// treat as a normal, silent case.
func (r *Registry) SubscriptionsFor(topic event.Topic) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.topics[topic]
	if !ok {
		return nil
	}
	subscriptions := make([]*Subscription, 0, len(set))
	for _, sub := range set {
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions
}

// Add registers a subscription under its topic, initializing the topic
// entry on the fly.
func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[sub.topic]; !ok {
		r.topics[sub.topic] = make(subscriptionSet)
	}
	r.topics[sub.topic][sub.id] = sub
}

// Remove drops a subscription and cleans up empty topic entries so the map
// does not leak topics over time. Removing an unknown subscription is a
// no-op.
func (r *Registry) Remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.topics[sub.topic]
	if !ok {
		return
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(r.topics, sub.topic)
	}
}

func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
