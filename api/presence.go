package api

import (
	"context"
	"sync"
	"time"

	"github.com/loopboard/realtime/internal/slogging"
)

// PresenceStatus is the coarse availability state shown next to a user's
// avatar.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceAway    PresenceStatus = "AWAY"
	PresenceBusy    PresenceStatus = "BUSY"
	PresenceOffline PresenceStatus = "OFFLINE"
)

// Valid reports whether the status is one of the four known states.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

// PresenceRecord is the externally visible presence of one user. It doubles
// as the presence:update payload and the internal API response shape.
type PresenceRecord struct {
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	Message  string         `json:"message,omitempty"`
	LastSeen time.Time      `json:"lastSeen"`
}

// presenceEntry is the tracker's internal state for one user. The explicit
// field remembers a manually chosen AWAY or BUSY so it survives reconnects;
// connects only flip users out of OFFLINE, never out of a chosen state.
type presenceEntry struct {
	status   PresenceStatus
	explicit PresenceStatus
	message  string
	lastSeen time.Time
}

// PresenceTracker owns the authoritative in-memory presence map. Every write
// is mirrored to the optional store so sibling services can read presence
// without holding a WebSocket. Store failures degrade to logging; the
// in-memory state is never blocked on the mirror.
type PresenceTracker struct {
	mu      sync.RWMutex
	entries map[string]*presenceEntry
	store   PresenceStore
	logger  *slogging.Logger
}

// NewPresenceTracker builds a tracker. store may be nil when no mirror is
// configured.
func NewPresenceTracker(store PresenceStore) *PresenceTracker {
	return &PresenceTracker{
		entries: make(map[string]*presenceEntry),
		store:   store,
		logger:  slogging.Get(),
	}
}

// HandleConnect records a user's first live connection. Users come back as
// ONLINE unless they had explicitly chosen AWAY or BUSY before, in which case
// the chosen state is restored. The returned changed flag is false when the
// visible status did not move, so callers can skip the fanout.
func (t *PresenceTracker) HandleConnect(userID string) (PresenceRecord, bool) {
	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok {
		entry = &presenceEntry{}
		t.entries[userID] = entry
	}
	previous := entry.status
	next := PresenceOnline
	if entry.explicit == PresenceAway || entry.explicit == PresenceBusy {
		next = entry.explicit
	}
	entry.status = next
	entry.lastSeen = time.Now().UTC()
	record := t.recordLocked(userID, entry)
	t.mu.Unlock()

	t.mirror(record)
	return record, previous != next
}

// HandleDisconnect records that a user's last connection closed. The user
// goes OFFLINE immediately; there is no grace period, so a page reload shows
// as a brief OFFLINE/ONLINE flap. An explicitly chosen AWAY or BUSY is kept
// for the next connect.
func (t *PresenceTracker) HandleDisconnect(userID string) PresenceRecord {
	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok {
		entry = &presenceEntry{}
		t.entries[userID] = entry
	}
	entry.status = PresenceOffline
	entry.lastSeen = time.Now().UTC()
	record := t.recordLocked(userID, entry)
	t.mu.Unlock()

	t.mirror(record)
	return record
}

// Set applies an explicit presence change. OFFLINE clears the sticky state
// so the next connect comes back ONLINE.
func (t *PresenceTracker) Set(userID string, status PresenceStatus, message string) PresenceRecord {
	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok {
		entry = &presenceEntry{}
		t.entries[userID] = entry
	}
	entry.status = status
	entry.message = message
	entry.lastSeen = time.Now().UTC()
	if status == PresenceOffline || status == PresenceOnline {
		entry.explicit = ""
	} else {
		entry.explicit = status
	}
	record := t.recordLocked(userID, entry)
	t.mu.Unlock()

	t.mirror(record)
	return record
}

// Get resolves presence for a batch of users. Users the tracker has never
// seen come back as OFFLINE with a zero lastSeen rather than being omitted.
func (t *PresenceTracker) Get(userIDs []string) []PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]PresenceRecord, 0, len(userIDs))
	for _, userID := range userIDs {
		if entry, ok := t.entries[userID]; ok {
			records = append(records, t.recordLocked(userID, entry))
			continue
		}
		records = append(records, PresenceRecord{UserID: userID, Status: PresenceOffline})
	}
	return records
}

func (t *PresenceTracker) recordLocked(userID string, entry *presenceEntry) PresenceRecord {
	return PresenceRecord{
		UserID:   userID,
		Status:   entry.status,
		Message:  entry.message,
		LastSeen: entry.lastSeen,
	}
}

func (t *PresenceTracker) mirror(record PresenceRecord) {
	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.store.Save(ctx, record); err != nil {
		t.logger.Warn("[presence] mirror write failed for user %s: %v", record.UserID, err)
	}
}
