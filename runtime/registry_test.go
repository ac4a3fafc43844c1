package runtime

import (
	"testing"

	"dm-core/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestSubscription(topic event.Topic) *Subscription {
	return &Subscription{
		id:     uuid.New(),
		topic:  topic,
		events: make(chan event.DomainEvent, 1),
		done:   make(chan struct{}),
	}
}

func TestRegistry_Add_One_Topic_One_Subscription(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	topic := event.UserTopic("alice")
	sub := newTestSubscription(topic)

	// Given no subscription exists
	req.Zero(registry.TopicCount())
	req.Nil(registry.SubscriptionsFor(topic))

	// When a subscription is registered
	registry.Add(sub)

	// Then
	req.Equal(1, registry.TopicCount())
	req.Len(registry.SubscriptionsFor(topic), 1)
	req.Contains(registry.SubscriptionsFor(topic), sub)
}

func TestRegistry_Add_One_Topic_Multiple_Subscriptions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	topic := event.UserTopic("alice")
	sub1 := newTestSubscription(topic)
	sub2 := newTestSubscription(topic)

	// When two subscriptions register on the same topic
	registry.Add(sub1)
	registry.Add(sub2)

	// Then both are visible under a single topic entry
	req.Equal(1, registry.TopicCount())
	req.Len(registry.SubscriptionsFor(topic), 2)
	req.Contains(registry.SubscriptionsFor(topic), sub1)
	req.Contains(registry.SubscriptionsFor(topic), sub2)
}

func TestRegistry_Remove_CleansUpEmptyTopics(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	topic := event.UserTopic("alice")
	sub := newTestSubscription(topic)

	// Given a registered subscription
	registry.Add(sub)

	// When it is removed
	registry.Remove(sub)

	// Then the topic entry doesn't exist anymore
	req.Zero(registry.TopicCount())
	req.Nil(registry.SubscriptionsFor(topic))

	// And removing it again is a no-op
	registry.Remove(sub)
	req.Zero(registry.TopicCount())
}

func TestRegistry_Remove_KeepsOtherSubscriptions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	topic := event.UserTopic("alice")
	sub1 := newTestSubscription(topic)
	sub2 := newTestSubscription(topic)

	registry.Add(sub1)
	registry.Add(sub2)

	// When only one subscription leaves
	registry.Remove(sub1)

	// Then the other stays reachable
	req.Len(registry.SubscriptionsFor(topic), 1)
	req.Contains(registry.SubscriptionsFor(topic), sub2)
}
