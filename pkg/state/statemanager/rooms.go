package statemanager

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

type InMemoryRoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*state.Room

	logger *slog.Logger
	now    func() time.Time
}

var _ state.RoomRegistry = (*InMemoryRoomRegistry)(nil)

func NewRoomRegistry(logger *slog.Logger) *InMemoryRoomRegistry {
	return &InMemoryRoomRegistry{
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "room_registry")),
		now:    time.Now,
	}
}

func (r *InMemoryRoomRegistry) Join(roomID, userID string, role state.Role) state.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		now := r.now()
		room = &state.Room{
			ID:           roomID,
			Participants: make(map[string]struct{}),
			Documents:    make(map[string][]state.EditRecord),
			CreatedAt:    now,
		}
		r.rooms[roomID] = room
		r.logger.Debug("Room created", slog.String("roomID", roomID))
	}

	// set semantics: a rejoin is a no-op on membership
	room.Participants[userID] = struct{}{}
	room.LastActivityAt = r.now()

	r.logger.Debug("User joined room",
		slog.String("roomID", roomID),
		slog.String("userID", userID),
		slog.String("role", string(role)),
	)
	return snapshotLocked(room)
}

func (r *InMemoryRoomRegistry) Leave(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		r.logger.Warn("Leave for unknown room",
			slog.String("roomID", roomID),
			slog.String("userID", userID),
		)
		return
	}

	// The room itself is kept even when empty; the reaper sweeps it later so
	// a rapid rejoin keeps document and chat history.
	delete(room.Participants, userID)
	room.LastActivityAt = r.now()
	r.logger.Debug("User left room", slog.String("roomID", roomID), slog.String("userID", userID))
}

func (r *InMemoryRoomRegistry) RecordEdit(roomID, documentID, userID string, role state.Role, payload json.RawMessage) (state.EditRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		// A write must always follow a join. Dropping beats fabricating a
		// room from an edit nobody will ever see.
		r.logger.Warn("Edit dropped for unknown room",
			slog.String("roomID", roomID),
			slog.String("documentID", documentID),
			slog.String("userID", userID),
		)
		return state.EditRecord{}, false
	}

	rec := state.EditRecord{
		UserID:    userID,
		Role:      role,
		Payload:   payload,
		Timestamp: r.now(),
	}
	room.Documents[documentID] = append(room.Documents[documentID], rec)
	room.LastActivityAt = rec.Timestamp
	return rec, true
}

func (r *InMemoryRoomRegistry) RecordChatMessage(roomID, userID string, role state.Role, content, clientMessageID string) (state.ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		r.logger.Warn("Chat message dropped for unknown room",
			slog.String("roomID", roomID),
			slog.String("userID", userID),
		)
		return state.ChatMessage{}, false
	}

	id := clientMessageID
	if id == "" {
		id = uuid.NewString()
	}
	msg := state.ChatMessage{
		ID:        id,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Timestamp: r.now(),
	}
	// Chat order is server arrival order, which under this lock is the
	// lock-acquisition order. Concurrent senders may interleave.
	room.ChatLog = append(room.ChatLog, msg)
	room.LastActivityAt = msg.Timestamp
	return msg, true
}

func (r *InMemoryRoomRegistry) Participants(roomID string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return lo.Keys(room.Participants), true
}

func (r *InMemoryRoomRegistry) Snapshot(roomID string) (state.RoomSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return state.RoomSnapshot{}, false
	}
	return snapshotLocked(room), true
}

func (r *InMemoryRoomRegistry) EvictAbsent(live func(userID string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, room := range r.rooms {
		for userID := range room.Participants {
			if live(userID) {
				continue
			}
			delete(room.Participants, userID)
			evicted++
			r.logger.Debug("Evicted absent participant",
				slog.String("roomID", id),
				slog.String("userID", userID),
			)
		}
	}
	return evicted
}

func (r *InMemoryRoomRegistry) SweepEmpty() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var swept []string
	for id, room := range r.rooms {
		if len(room.Participants) == 0 {
			delete(r.rooms, id)
			swept = append(swept, id)
		}
	}
	if len(swept) > 0 {
		r.logger.Debug("Swept empty rooms", slog.Int("count", len(swept)))
	}
	return swept
}

func (r *InMemoryRoomRegistry) ActiveRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// snapshotLocked builds the joining client's view. Caller holds the lock.
func snapshotLocked(room *state.Room) state.RoomSnapshot {
	participants := lo.Keys(room.Participants)
	sort.Strings(participants)
	return state.RoomSnapshot{
		ID:               room.ID,
		ParticipantCount: len(participants),
		Participants:     participants,
		LastActivityAt:   room.LastActivityAt,
	}
}
