package state

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role is the coarse access level asserted by the auth layer. The realtime
// core trusts it without re-verifying a token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ConnStatus is the lifecycle state of a single transport connection.
type ConnStatus string

const (
	ConnUnauthenticated ConnStatus = "unauthenticated"
	ConnActive          ConnStatus = "active"
	ConnAway            ConnStatus = "away"
	ConnBusy            ConnStatus = "busy"
)

// PresenceStatus is the per-user (not per-connection) liveness state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// ParsePresenceStatus validates a client-supplied status string.
func ParsePresenceStatus(s string) (PresenceStatus, error) {
	switch PresenceStatus(s) {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return PresenceStatus(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Sender is the transport side of a connection as the registries see it.
// *transport.Connection satisfies it; tests substitute a recording fake.
type Sender interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Connection is the registry's record of a single live transport session.
// Identity fields are empty until the authenticate event lands. Fields are
// mutated only under the registry lock; each connection's inbound events are
// serialized by its read pump, so there is a single logical writer per record.
type Connection struct {
	ID             uuid.UUID
	IPAddress      string
	Transport      Sender
	UserID         string
	Role           Role
	Status         ConnStatus
	ConnectedAt    time.Time
	LastActivityAt time.Time
}

// Authenticated reports whether an identity has been attached.
func (c *Connection) Authenticated() bool {
	return c.Status != ConnUnauthenticated && c.UserID != ""
}

// EditRecord is one entry in a document's append-only edit log. Ordering is
// server arrival order; there is no merge or transform of concurrent edits.
type EditRecord struct {
	UserID    string          `json:"userId"`
	Role      Role            `json:"role"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ChatMessage is one entry in a room's chat log. ID is server-issued unless
// the client supplied its own message id.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Room is a named collaboration context. Participants holds userIDs, not
// connection references, so membership survives reconnects.
type Room struct {
	ID             string
	Participants   map[string]struct{}
	Documents      map[string][]EditRecord
	ChatLog        []ChatMessage
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// RoomSnapshot is the read-only view returned to a joining client.
type RoomSnapshot struct {
	ID               string    `json:"roomId"`
	ParticipantCount int       `json:"participantCount"`
	Participants     []string  `json:"participants"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
}

// PresenceRecord is the single per-user presence view. Multiple sessions for
// the same user collapse into one record; last update wins.
type PresenceRecord struct {
	UserID     string         `json:"userId"`
	Status     PresenceStatus `json:"status"`
	Activity   string         `json:"currentActivity,omitempty"`
	LastSeenAt time.Time      `json:"lastSeenAt"`
}

// ConnectionCounts feeds the stats endpoint.
type ConnectionCounts struct {
	TotalConnections   int `json:"totalConnections"`
	AuthenticatedUsers int `json:"authenticatedUsers"`
	AdminUsers         int `json:"adminUsers"`
}

// Channels are audiences maintained by the connection registry: every
// authenticated connection is enrolled in its user's personal channel and its
// role channel; admins additionally join the shared admin channel.
const AdminChannel = "admin"

func UserChannel(userID string) string {
	return "user-" + userID
}

func RoleChannel(role Role) string {
	return "role-" + string(role)
}
