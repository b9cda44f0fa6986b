package statemanager_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state/statemanager"
)

func TestJoinCreatesRoomAndIsIdempotent(t *testing.T) {
	r := statemanager.NewRoomRegistry(newTestLogger())

	snap := r.Join("budget-1", "u1", state.RoleUser)
	require.Equal(t, "budget-1", snap.ID)
	require.Equal(t, 1, snap.ParticipantCount)

	// Rejoining is a no-op on membership, not an error.
	snap = r.Join("budget-1", "u1", state.RoleUser)
	require.Equal(t, 1, snap.ParticipantCount)

	snap = r.Join("budget-1", "u2", state.RoleAdmin)
	require.Equal(t, 2, snap.ParticipantCount)
	require.ElementsMatch(t, []string{"u1", "u2"}, snap.Participants)
}

func TestLeaveKeepsRoomUntilSweep(t *testing.T) {
	r := statemanager.NewRoomRegistry(newTestLogger())
	r.Join("doc-9", "u1", state.RoleUser)

	r.Leave("doc-9", "u1")

	// Not deleted synchronously: a rapid rejoin keeps history.
	participants, ok := r.Participants("doc-9")
	require.True(t, ok)
	require.Empty(t, participants)

	swept := r.SweepEmpty()
	require.Equal(t, []string{"doc-9"}, swept)
	_, ok = r.Participants("doc-9")
	require.False(t, ok)
	require.Zero(t, r.ActiveRooms())
}

func TestSweepEmptySparesOccupiedRooms(t *testing.T) {
	r := statemanager.NewRoomRegistry(newTestLogger())
	r.Join("a", "u1", state.RoleUser)
	r.Join("b", "u2", state.RoleUser)
	r.Leave("a", "u1")

	swept := r.SweepEmpty()
	require.Equal(t, []string{"a"}, swept)
	require.Equal(t, 1, r.ActiveRooms())
}

func TestEvictAbsentDropsOnlyRejectedParticipants(t *testing.T) {
	r := statemanager.NewRoomRegistry(newTestLogger())
	r.Join("budget-1", "u1", state.RoleUser)
	r.Join("budget-1", "u2", state.RoleUser)
	r.Join("doc-9", "u2", state.RoleUser)

	evicted := r.EvictAbsent(func(userID string) bool { return userID == "u1" })
	require.Equal(t, 2, evicted)

	participants, ok := r.Participants("budget-1")
	require.True(t, ok)
	require.Equal(t, []string{"u1"}, participants)

	// doc-9 is now empty but not deleted; that is SweepEmpty's job.
	participants, ok = r.Participants("doc-9")
	require.True(t, ok)
	require.Empty(t, participants)
	require.Equal(t, []string{"doc-9"}, r.SweepEmpty())
}

func TestRecordEditUnknownRoomIsDropped(t *testing.T) {
	r := statemanager.NewRoomRegistry(newTestLogger())

	_, ok := r.RecordEdit("ghost", "doc1", "u1", state.RoleUser, json.RawMessage(`"x=1"`))
	require.False(t, ok)
	// The drop must not fabricate the room.
	_, found := r.Participants("ghost")
	require.False(t, found)
}

func TestRecordEditAppendsInOrder(t *testing.T) {
	r := statemanager.NewRoomRegistry(newTestLogger())
	r.Join("budget-1", "u1", state.RoleUser)

	first, ok := r.RecordEdit("budget-1", "doc1", "u1", state.RoleUser, json.RawMessage(`"x=1"`))
	require.True(t, ok)
	require.Equal(t, "u1", first.UserID)
	require.False(t, first.Timestamp.IsZero())

	second, ok := r.RecordEdit("budget-1", "doc1", "u2", state.RoleAdmin, json.RawMessage(`"x=2"`))
	require.True(t, ok)
	require.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestRecordChatMessageAssignsServerID(t *testing.T) {
	r := statemanager.NewRoomRegistry(newTestLogger())
	r.Join("budget-1", "u1", state.RoleUser)

	generated, ok := r.RecordChatMessage("budget-1", "u1", state.RoleUser, "hello", "")
	require.True(t, ok)
	require.NotEmpty(t, generated.ID)

	reused, ok := r.RecordChatMessage("budget-1", "u1", state.RoleUser, "again", "client-42")
	require.True(t, ok)
	require.Equal(t, "client-42", reused.ID)

	_, ok = r.RecordChatMessage("ghost", "u1", state.RoleUser, "dropped", "")
	require.False(t, ok)
}
