package realtime_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HobbitNuggettel/Home-Hub-sub000/internal/realtime"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

func TestReaperEvictsEmptyRooms(t *testing.T) {
	env := newTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reaper := realtime.NewReaper(logger, env.conns, env.rooms, env.presence, time.Minute, time.Hour)

	a := env.connectAs("u1", state.RoleUser)
	env.send(a, realtime.EventJoinCollab, realtime.JoinPayload{RoomID: "doc-9", UserID: "u1"})
	env.send(a, realtime.EventLeaveCollab, realtime.LeavePayload{RoomID: "doc-9", UserID: "u1"})

	// Leave alone does not delete the room.
	require.Equal(t, 1, env.rooms.ActiveRooms())

	reaper.Sweep()
	require.Zero(t, env.rooms.ActiveRooms())

	// An edit to the reaped room is a logged no-op: no error event, no ack.
	before := len(a.sent)
	env.send(a, realtime.EventDocumentEdit, map[string]any{
		"roomId": "doc-9", "userId": "u1", "documentId": "doc1", "changes": "x=1",
	})
	require.Len(t, a.sent, before)
}

func TestReaperSparesOccupiedRoomsAndRapidRejoin(t *testing.T) {
	env := newTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reaper := realtime.NewReaper(logger, env.conns, env.rooms, env.presence, time.Minute, time.Hour)

	a := env.connectAs("u1", state.RoleUser)
	env.send(a, realtime.EventJoinCollab, realtime.JoinPayload{RoomID: "budget-1", UserID: "u1"})
	env.send(a, realtime.EventChatMessage, realtime.ChatMessagePayload{RoomID: "budget-1", UserID: "u1", Message: "keep me"})

	// Leaving and rejoining before the sweep keeps room history.
	env.send(a, realtime.EventLeaveCollab, realtime.LeavePayload{RoomID: "budget-1", UserID: "u1"})
	env.send(a, realtime.EventJoinCollab, realtime.JoinPayload{RoomID: "budget-1", UserID: "u1"})

	reaper.Sweep()
	require.Equal(t, 1, env.rooms.ActiveRooms())
}

func TestReaperEvictsParticipantsWithoutConnections(t *testing.T) {
	env := newTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reaper := realtime.NewReaper(logger, env.conns, env.rooms, env.presence, time.Minute, time.Hour)

	a := env.connectAs("u1", state.RoleUser)
	b := env.connectAs("u2", state.RoleUser)
	env.send(a, realtime.EventJoinCollab, realtime.JoinPayload{RoomID: "budget-1", UserID: "u1"})
	env.send(b, realtime.EventJoinCollab, realtime.JoinPayload{RoomID: "budget-1", UserID: "u2"})

	// A dropped transport removes the connection but not room membership.
	env.d.HandleDisconnect(a.ID(), nil)
	participants, ok := env.rooms.Participants("budget-1")
	require.True(t, ok)
	require.Len(t, participants, 2)

	// The sweep reclaims the seat; the still-connected user is spared.
	reaper.Sweep()
	participants, ok = env.rooms.Participants("budget-1")
	require.True(t, ok)
	require.Equal(t, []string{"u2"}, participants)

	// Once nobody in the room has a live connection, the room itself goes.
	env.d.HandleDisconnect(b.ID(), nil)
	reaper.Sweep()
	require.Zero(t, env.rooms.ActiveRooms())
}

func TestReaperMarksStalePresenceOffline(t *testing.T) {
	env := newTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Zero TTL: everything not already offline is stale.
	reaper := realtime.NewReaper(logger, env.conns, env.rooms, env.presence, time.Minute, 0)

	s := env.connectAs("u1", state.RoleUser)
	env.send(s, realtime.EventPresenceUpdate, realtime.PresenceUpdatePayload{UserID: "u1", Status: "online"})

	before := len(s.sent)
	reaper.Sweep()

	rec, ok := env.presence.Get("u1")
	require.True(t, ok)
	require.Equal(t, state.PresenceOffline, rec.Status)
	// No outbound event is produced for a presence timeout.
	require.Len(t, s.sent, before)
}
