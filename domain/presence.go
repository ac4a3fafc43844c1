package domain

import "time"

// Presence is a user's coarse online/offline status. It is advisory only:
// a crash that skips the offline transition is an accepted staleness window.
type Presence struct {
	UserID   string
	Online   bool
	LastSeen time.Time
}
