package realtime

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

// noExclusion is passed to ToRoom when every participant connection should
// receive the event, sender included.
var noExclusion = uuid.Nil

// Broadcaster computes the audience for an outbound event and performs the
// send. Delivery is best-effort, at-most-once: no acknowledgment, no retry,
// no store-and-forward. A disconnected recipient never sees the event.
type Broadcaster struct {
	logger *slog.Logger
	conns  state.ConnectionRegistry
	rooms  state.RoomRegistry
}

func NewBroadcaster(logger *slog.Logger, conns state.ConnectionRegistry, rooms state.RoomRegistry) *Broadcaster {
	return &Broadcaster{
		logger: logger.With(slog.String("component", "broadcaster")),
		conns:  conns,
		rooms:  rooms,
	}
}

// ToRoom sends to every connection of every participant in the room, except
// the excluded connection. Pass uuid.Nil to exclude nobody. The exclusion is
// per connection, not per user: a sender's second device still receives the
// event.
func (b *Broadcaster) ToRoom(roomID, event string, payload any, exclude uuid.UUID) {
	participants, ok := b.rooms.Participants(roomID)
	if !ok {
		b.logger.Debug("Broadcast to unknown room skipped", slog.String("roomID", roomID))
		return
	}
	msg, err := Marshal(event, payload)
	if err != nil {
		b.logger.Error("Broadcast marshal failed", slog.String("event", event), slog.Any("error", err))
		return
	}

	sent := 0
	for _, userID := range participants {
		for _, sender := range b.conns.UserConnections(userID) {
			if sender.ID() == exclude {
				continue
			}
			sender.Send(msg)
			sent++
		}
	}
	b.logger.Debug("Broadcast to room",
		slog.String("roomID", roomID),
		slog.String("event", event),
		slog.Int("connections", sent),
	)
}

// ToUser sends to the user's personal channel. A user with no live
// connection is a no-op.
func (b *Broadcaster) ToUser(userID, event string, payload any) {
	b.toChannel(state.UserChannel(userID), event, payload, uuid.Nil)
}

// ToRole sends to every connection authenticated with the given role.
func (b *Broadcaster) ToRole(role state.Role, event string, payload any) {
	b.toChannel(state.RoleChannel(role), event, payload, uuid.Nil)
}

// ToAdmins sends to the shared admin channel, used for cross-cutting
// monitoring notifications.
func (b *Broadcaster) ToAdmins(event string, payload any) {
	b.toChannel(state.AdminChannel, event, payload, uuid.Nil)
}

// ToAdminsExcept is ToAdmins minus one connection, so an admin does not get
// its own lifecycle notifications echoed back.
func (b *Broadcaster) ToAdminsExcept(event string, payload any, exclude uuid.UUID) {
	b.toChannel(state.AdminChannel, event, payload, exclude)
}

func (b *Broadcaster) toChannel(channel, event string, payload any, exclude uuid.UUID) {
	msg, err := Marshal(event, payload)
	if err != nil {
		b.logger.Error("Broadcast marshal failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	senders := b.conns.ChannelConnections(channel)
	for _, sender := range senders {
		if sender.ID() == exclude {
			continue
		}
		sender.Send(msg)
	}
	b.logger.Debug("Broadcast to channel",
		slog.String("channel", channel),
		slog.String("event", event),
		slog.Int("connections", len(senders)),
	)
}
