package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

// Reaper is the periodic sweep that evicts room participants whose user has
// no live connection left, removes rooms that end up empty, and flips stale
// presence records to offline. It runs on a fixed interval rather than on
// disconnect triggers, so a missed transport close event cannot leak a room
// forever. Presence timeouts produce no outbound event; polling clients
// re-query with get_presence.
type Reaper struct {
	logger      *slog.Logger
	conns       state.ConnectionRegistry
	rooms       state.RoomRegistry
	presence    state.PresenceTracker
	interval    time.Duration
	presenceTTL time.Duration
}

func NewReaper(logger *slog.Logger, conns state.ConnectionRegistry, rooms state.RoomRegistry, presence state.PresenceTracker, interval, presenceTTL time.Duration) *Reaper {
	return &Reaper{
		logger:      logger.With(slog.String("component", "reaper")),
		conns:       conns,
		rooms:       rooms,
		presence:    presence,
		interval:    interval,
		presenceTTL: presenceTTL,
	}
}

// Run blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Reaper started",
		slog.Duration("interval", r.interval),
		slog.Duration("presenceTTL", r.presenceTTL),
	)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep performs one reap cycle. Exported so tests and shutdown paths can
// drive it deterministically.
func (r *Reaper) Sweep() {
	// Eviction runs first so a room whose last participant disconnected is
	// emptied and removed within the same cycle.
	if evicted := r.rooms.EvictAbsent(func(userID string) bool {
		return r.conns.UserConnectionCount(userID) > 0
	}); evicted > 0 {
		r.logger.Info("Evicted absent participants", slog.Int("count", evicted))
	}
	if swept := r.rooms.SweepEmpty(); len(swept) > 0 {
		r.logger.Info("Evicted empty rooms", slog.Any("roomIDs", swept))
	}
	if stale := r.presence.MarkStale(r.presenceTTL); len(stale) > 0 {
		r.logger.Info("Marked stale presence offline", slog.Any("userIDs", stale))
	}
}
