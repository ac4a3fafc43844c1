package runtime

import (
	"log/slog"
	"sync"
	"time"

	"dm-core/domain"
	"dm-core/domain/event"
)

// PresenceTracker maintains each user's online/offline flag in memory.
// Presence is advisory: it lives for the process lifetime only, and a crash
// that skips an offline transition is an accepted staleness window that the
// sweep covers eventually.
type PresenceTracker struct {
	log *slog.Logger
	bus *Bus

	mu      sync.RWMutex
	records map[string]domain.Presence
}

func NewPresenceTracker(log *slog.Logger, bus *Bus) *PresenceTracker {
	return &PresenceTracker{
		log:     log,
		bus:     bus,
		records: make(map[string]domain.Presence),
	}
}

// SetOnline marks the user online. Idempotent: repeated calls refresh
// last_seen but only an actual transition publishes a presence event to the
// user's observers.
func (t *PresenceTracker) SetOnline(userID string) {
	if t.flip(userID, true) {
		t.publish(userID, true)
	}
}

// SetOffline marks the user offline. Idempotent, including for users never
// seen before.
func (t *PresenceTracker) SetOffline(userID string) {
	if t.flip(userID, false) {
		t.publish(userID, false)
	}
}

// Touch refreshes last_seen for an online user. Called on connection
// heartbeats so the staleness sweep spares live connections.
func (t *PresenceTracker) Touch(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[userID]
	if !ok || !record.Online {
		return
	}
	record.LastSeen = time.Now().UTC()
	t.records[userID] = record
}

func (t *PresenceTracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[userID].Online
}

// Snapshot returns the point-in-time presence record of a user. Unknown
// users read as offline with a zero last_seen.
func (t *PresenceTracker) Snapshot(userID string) domain.Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[userID]
	if !ok {
		return domain.Presence{UserID: userID}
	}
	return record
}

// SweepStale flips users offline whose last_seen is older than ttl and
// returns their ids. It covers connections that died without the offline
// transition.
func (t *PresenceTracker) SweepStale(ttl time.Duration) []string {
	deadline := time.Now().UTC().Add(-ttl)

	t.mu.Lock()
	var stale []string
	for userID, record := range t.records {
		if record.Online && record.LastSeen.Before(deadline) {
			record.Online = false
			t.records[userID] = record
			stale = append(stale, userID)
		}
	}
	t.mu.Unlock()

	for _, userID := range stale {
		t.log.Debug("Presence swept, connection went silent", "user", userID)
		t.publish(userID, false)
	}
	return stale
}

// publish runs outside the tracker lock: the bus grabs its own locks and
// holding both invites deadlocks.
func (t *PresenceTracker) publish(userID string, online bool) {
	t.bus.Publish(event.UserTopic(userID), event.PresenceChanged{
		UserID: userID,
		Online: online,
		At:     time.Now().UTC(),
	})
}

// flip updates the record and reports whether the online flag actually
// changed.
func (t *PresenceTracker) flip(userID string, online bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[userID]
	if !ok {
		record = domain.Presence{UserID: userID}
	}
	changed := record.Online != online
	record.Online = online
	record.LastSeen = time.Now().UTC()
	t.records[userID] = record
	return changed
}
