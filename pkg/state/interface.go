package state

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConnectionRegistry tracks every live transport connection, its identity
// metadata, and the channels the connection is enrolled in.
type ConnectionRegistry interface {
	// Register creates a record in the unauthenticated state. Pure insert,
	// no failure mode.
	Register(conn Sender, ipAddr string) *Connection

	// Authenticate attaches identity to the connection and enrolls it in the
	// personal, role, and (for admins) shared admin channels. Fails with
	// ErrInvalidAuthData when userID or role is empty, ErrUnknownConnection
	// when the connection was already removed.
	Authenticate(connID uuid.UUID, userID string, role Role) (*Connection, error)

	// Touch stamps LastActivityAt; called on every inbound event.
	Touch(connID uuid.UUID)

	// SetStatus updates the connection-level status (active/away/busy).
	SetStatus(connID uuid.UUID, status ConnStatus)

	// Remove detaches and returns the record for cleanup notification.
	// Idempotent: returns nil when already removed.
	Remove(connID uuid.UUID) *Connection

	Get(connID uuid.UUID) (*Connection, bool)
	UserConnections(userID string) []Sender
	UserConnectionCount(userID string) int
	FindOldestUserConnection(userID string) (*Connection, bool)
	ChannelConnections(channel string) []Sender
	Counts() ConnectionCounts
	AllConnections() []*Connection
}

// RoomRegistry tracks collaboration rooms, membership, and room-scoped data.
type RoomRegistry interface {
	// Join creates the room if absent and adds userID to the participant set.
	// Rejoining is a no-op on membership, not an error.
	Join(roomID, userID string, role Role) RoomSnapshot

	// Leave removes the user from the participant set. The room itself is
	// reaped later by SweepEmpty so a rapid rejoin keeps its history.
	Leave(roomID, userID string)

	// RecordEdit appends to the document's edit log with a server timestamp.
	// An edit to an unknown room is dropped (ok=false): a write must always
	// follow a join, and fabricating a room here would hide client bugs.
	RecordEdit(roomID, documentID, userID string, role Role, payload json.RawMessage) (rec EditRecord, ok bool)

	// RecordChatMessage appends to the chat log in server arrival order,
	// reusing clientMessageID as the message id when supplied.
	RecordChatMessage(roomID, userID string, role Role, content, clientMessageID string) (msg ChatMessage, ok bool)

	Participants(roomID string) ([]string, bool)
	Snapshot(roomID string) (RoomSnapshot, bool)

	// EvictAbsent drops every participant the live predicate rejects and
	// returns the number evicted. A disconnect leaves membership intact so a
	// reconnect can resume; the reaper calls this to reclaim seats whose user
	// never came back.
	EvictAbsent(live func(userID string) bool) int

	// SweepEmpty removes and returns rooms with zero participants.
	SweepEmpty() []string

	ActiveRooms() int
}

// PresenceTracker derives online/away/busy/offline state per user,
// independent of room membership. Last update wins; there is no vector-clock
// reconciliation across simultaneous sessions.
type PresenceTracker interface {
	SetStatus(userID string, status PresenceStatus, activity string) (PresenceRecord, error)
	Get(userID string) (PresenceRecord, bool)

	// MarkStale flips records whose LastSeenAt is older than the threshold to
	// offline and returns the affected userIDs.
	MarkStale(olderThan time.Duration) []string
}
