package realtime_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/HobbitNuggettel/Home-Hub-sub000/internal/realtime"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state/statemanager"
)

// fakeSender records every outbound message for inspection.
type fakeSender struct {
	id     uuid.UUID
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{id: uuid.New()}
}

func (f *fakeSender) ID() uuid.UUID { return f.id }

func (f *fakeSender) Send(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeSender) Close(error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// received returns the payloads of every recorded message with the given
// event name.
func (f *fakeSender) received(event string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []json.RawMessage
	for _, msg := range f.sent {
		if gjson.GetBytes(msg, "event").String() == event {
			out = append(out, json.RawMessage(gjson.GetBytes(msg, "payload").Raw))
		}
	}
	return out
}

func (f *fakeSender) countOf(event string) int {
	return len(f.received(event))
}

// lastPayload fails the test unless at least one message with the event
// name was recorded; it returns the most recent payload.
func (f *fakeSender) lastPayload(t *testing.T, event string) json.RawMessage {
	t.Helper()
	msgs := f.received(event)
	require.NotEmpty(t, msgs, "expected a %q event", event)
	return msgs[len(msgs)-1]
}

func field(payload json.RawMessage, path string) string {
	return gjson.GetBytes(payload, path).String()
}

// testEnv wires a dispatcher against real in-memory registries.
type testEnv struct {
	t        *testing.T
	conns    *statemanager.InMemoryConnectionRegistry
	rooms    *statemanager.InMemoryRoomRegistry
	presence *statemanager.InMemoryPresenceTracker
	bcast    *realtime.Broadcaster
	d        *realtime.Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conns := statemanager.NewConnectionRegistry(logger)
	rooms := statemanager.NewRoomRegistry(logger)
	presence := statemanager.NewPresenceTracker(logger)
	broadcaster := realtime.NewBroadcaster(logger, conns, rooms)
	return &testEnv{
		t:        t,
		conns:    conns,
		rooms:    rooms,
		presence: presence,
		bcast:    broadcaster,
		d:        realtime.NewDispatcher(logger, conns, rooms, presence, broadcaster),
	}
}

// connect registers a fresh unauthenticated connection.
func (e *testEnv) connect() *fakeSender {
	s := newFakeSender()
	e.conns.Register(s, "127.0.0.1")
	return s
}

// send delivers an inbound event the way the transport would.
func (e *testEnv) send(s *fakeSender, event string, payload any) {
	e.t.Helper()
	msg, err := realtime.Marshal(event, payload)
	require.NoError(e.t, err)
	e.d.HandleMessage(context.Background(), s.ID(), msg)
}

// connectAs registers and authenticates a connection in one step.
func (e *testEnv) connectAs(userID string, role state.Role) *fakeSender {
	e.t.Helper()
	s := e.connect()
	e.send(s, realtime.EventAuthenticate, realtime.AuthenticatePayload{
		UserID: userID,
		Role:   string(role),
	})
	require.Equal(e.t, 1, s.countOf(realtime.EventAuthenticated), "authentication should succeed")
	return s
}
