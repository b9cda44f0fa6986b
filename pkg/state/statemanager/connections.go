// Package statemanager provides the in-memory implementations of the state
// registries. All stores are process-wide singletons guarded by their own
// RWMutex; nothing here persists across restarts.
package statemanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

type InMemoryConnectionRegistry struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]*state.Connection
	channels map[string]map[uuid.UUID]*state.Connection

	logger *slog.Logger
	now    func() time.Time
}

var _ state.ConnectionRegistry = (*InMemoryConnectionRegistry)(nil)

func NewConnectionRegistry(logger *slog.Logger) *InMemoryConnectionRegistry {
	return &InMemoryConnectionRegistry{
		conns:    make(map[uuid.UUID]*state.Connection),
		channels: make(map[string]map[uuid.UUID]*state.Connection),
		logger:   logger.With(slog.String("component", "connection_registry")),
		now:      time.Now,
	}
}

func (r *InMemoryConnectionRegistry) Register(conn state.Sender, ipAddr string) *state.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := &state.Connection{
		ID:             conn.ID(),
		IPAddress:      ipAddr,
		Transport:      conn,
		Status:         state.ConnUnauthenticated,
		ConnectedAt:    now,
		LastActivityAt: now,
	}
	r.conns[rec.ID] = rec
	r.logger.Debug("Connection registered", slog.String("connID", rec.ID.String()))
	return rec
}

func (r *InMemoryConnectionRegistry) Authenticate(connID uuid.UUID, userID string, role state.Role) (*state.Connection, error) {
	if userID == "" || role == "" {
		return nil, state.ErrInvalidAuthData
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[connID]
	if !ok {
		return nil, state.ErrUnknownConnection
	}

	// Re-authenticating under a new identity must not leave the connection
	// enrolled in the old identity's channels.
	if rec.UserID != "" && rec.UserID != userID {
		for channel, members := range r.channels {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.channels, channel)
			}
		}
	}

	rec.UserID = userID
	rec.Role = role
	rec.Status = state.ConnActive
	rec.LastActivityAt = r.now()

	r.enroll(state.UserChannel(userID), rec)
	r.enroll(state.RoleChannel(role), rec)
	if role == state.RoleAdmin {
		r.enroll(state.AdminChannel, rec)
	}

	r.logger.Debug("Connection authenticated",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
		slog.String("role", string(role)),
	)
	return rec, nil
}

// enroll adds a connection to a named channel. Caller holds the lock.
func (r *InMemoryConnectionRegistry) enroll(channel string, rec *state.Connection) {
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[uuid.UUID]*state.Connection)
		r.channels[channel] = members
	}
	members[rec.ID] = rec
}

func (r *InMemoryConnectionRegistry) Touch(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.conns[connID]; ok {
		rec.LastActivityAt = r.now()
	}
}

func (r *InMemoryConnectionRegistry) SetStatus(connID uuid.UUID, status state.ConnStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.conns[connID]; ok {
		rec.Status = status
		rec.LastActivityAt = r.now()
	}
}

func (r *InMemoryConnectionRegistry) Remove(connID uuid.UUID) *state.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[connID]
	if !ok {
		// already removed, disconnect handlers race with shutdown
		return nil
	}
	delete(r.conns, connID)
	for channel, members := range r.channels {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
	r.logger.Debug("Connection removed", slog.String("connID", connID.String()))
	return rec
}

func (r *InMemoryConnectionRegistry) Get(connID uuid.UUID) (*state.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.conns[connID]
	return rec, ok
}

func (r *InMemoryConnectionRegistry) UserConnections(userID string) []state.Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[state.UserChannel(userID)]
	return lo.MapToSlice(members, func(_ uuid.UUID, rec *state.Connection) state.Sender {
		return rec.Transport
	})
}

func (r *InMemoryConnectionRegistry) UserConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[state.UserChannel(userID)])
}

func (r *InMemoryConnectionRegistry) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *state.Connection
	for _, rec := range r.channels[state.UserChannel(userID)] {
		if oldest == nil || rec.ConnectedAt.Before(oldest.ConnectedAt) {
			oldest = rec
		}
	}
	return oldest, oldest != nil
}

func (r *InMemoryConnectionRegistry) ChannelConnections(channel string) []state.Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.channels[channel], func(_ uuid.UUID, rec *state.Connection) state.Sender {
		return rec.Transport
	})
}

func (r *InMemoryConnectionRegistry) Counts() state.ConnectionCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[string]struct{})
	admins := make(map[string]struct{})
	for _, rec := range r.conns {
		if !rec.Authenticated() {
			continue
		}
		users[rec.UserID] = struct{}{}
		if rec.Role == state.RoleAdmin {
			admins[rec.UserID] = struct{}{}
		}
	}
	return state.ConnectionCounts{
		TotalConnections:   len(r.conns),
		AuthenticatedUsers: len(users),
		AdminUsers:         len(admins),
	}
}

func (r *InMemoryConnectionRegistry) AllConnections() []*state.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.conns)
}
