package statemanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

type InMemoryPresenceTracker struct {
	mu      sync.RWMutex
	records map[string]*state.PresenceRecord

	logger *slog.Logger
	now    func() time.Time
}

var _ state.PresenceTracker = (*InMemoryPresenceTracker)(nil)

func NewPresenceTracker(logger *slog.Logger) *InMemoryPresenceTracker {
	return &InMemoryPresenceTracker{
		records: make(map[string]*state.PresenceRecord),
		logger:  logger.With(slog.String("component", "presence_tracker")),
		now:     time.Now,
	}
}

func (t *InMemoryPresenceTracker) SetStatus(userID string, status state.PresenceStatus, activity string) (state.PresenceRecord, error) {
	if _, err := state.ParsePresenceStatus(string(status)); err != nil {
		return state.PresenceRecord{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// One record per user: simultaneous sessions from two devices converge
	// to a single presence view, last update wins.
	rec := &state.PresenceRecord{
		UserID:     userID,
		Status:     status,
		Activity:   activity,
		LastSeenAt: t.now(),
	}
	t.records[userID] = rec
	t.logger.Debug("Presence updated",
		slog.String("userID", userID),
		slog.String("status", string(status)),
	)
	return *rec, nil
}

func (t *InMemoryPresenceTracker) Get(userID string) (state.PresenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[userID]
	if !ok {
		return state.PresenceRecord{}, false
	}
	return *rec, true
}

func (t *InMemoryPresenceTracker) MarkStale(olderThan time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-olderThan)
	var stale []string
	for userID, rec := range t.records {
		if rec.Status == state.PresenceOffline || rec.LastSeenAt.After(cutoff) {
			continue
		}
		rec.Status = state.PresenceOffline
		stale = append(stale, userID)
	}
	if len(stale) > 0 {
		t.logger.Debug("Marked stale presence offline", slog.Int("count", len(stale)))
	}
	return stale
}
