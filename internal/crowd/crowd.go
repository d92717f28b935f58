// internal/crowd/crowd.go
package crowd

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Tracker reference-counts connected users per room. A user with several
// simultaneous connections to the same room holds one entry with a refcount;
// the entry disappears when the last connection leaves.
type Tracker struct {
	mu    sync.Mutex
	rooms map[string]map[uuid.UUID]int

	// connections counts every live socket across all rooms, for the global
	// presence event.
	connections int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		rooms: make(map[string]map[uuid.UUID]int),
	}
}

// Connect increments the user's refcount in the room, creating the room entry
// if absent.
func (t *Tracker) Connect(room string, userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.rooms[room]
	if !ok {
		entry = make(map[uuid.UUID]int)
		t.rooms[room] = entry
	}
	entry[userID]++
	t.connections++
}

// Disconnect decrements the user's refcount in the room, removing the user
// entry at zero and the room entry when it becomes empty. Calling it for a
// user that is not present is a no-op.
func (t *Tracker) Disconnect(room string, userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.rooms[room]
	if !ok {
		return
	}
	n, ok := entry[userID]
	if !ok {
		return
	}
	t.connections--
	if n <= 1 {
		delete(entry, userID)
		if len(entry) == 0 {
			delete(t.rooms, room)
		}
		return
	}
	entry[userID] = n - 1
}

// IsOnline reports whether any room holds the user.
func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.rooms {
		if entry[userID] > 0 {
			return true
		}
	}
	return false
}

// IsOnlineInRoom reports whether one specific room holds the user.
func (t *Tracker) IsOnlineInRoom(room string, userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.rooms[room]
	return ok && entry[userID] > 0
}

// Ids returns the set of user ids currently in the room.
func (t *Tracker) Ids(room string) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.rooms[room]
	ids := make([]uuid.UUID, 0, len(entry))
	for id := range entry {
		ids = append(ids, id)
	}
	return ids
}

// Connections returns the number of live sockets across every room.
func (t *Tracker) Connections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connections
}

// purge drops every entry for the given users, across all rooms. Refcounts do
// not survive a purge: a deactivated account is gone, not decremented.
func (t *Tracker) purge(userIDs []uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for room, entry := range t.rooms {
		for _, id := range userIDs {
			if n, ok := entry[id]; ok {
				delete(entry, id)
				t.connections -= n
				removed++
			}
		}
		if len(entry) == 0 {
			delete(t.rooms, room)
		}
	}
	return removed
}

// DeactivatedLister supplies user ids deactivated within a trailing window.
type DeactivatedLister interface {
	RecentlyDeactivated(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// StartSweep purges presence entries for recently deactivated accounts on a
// fixed interval, until the context is cancelled. Guards against stale
// presence after forced account resets.
func (t *Tracker) StartSweep(ctx context.Context, logger *logrus.Logger, lister DeactivatedLister, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ids, err := lister.RecentlyDeactivated(ctx, time.Now().Add(-window))
				if err != nil {
					logger.Warnf("crowd sweep: listing deactivated users: %v", err)
					continue
				}
				if len(ids) == 0 {
					continue
				}
				if n := t.purge(ids); n > 0 {
					logger.Infof("crowd sweep: purged %d stale presence entries", n)
				}
			}
		}
	}()
}
