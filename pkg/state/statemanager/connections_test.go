package statemanager_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state/statemanager"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSender is a recording stand-in for a transport connection.
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

func TestConnectionLifecycle(t *testing.T) {
	r := statemanager.NewConnectionRegistry(newTestLogger())
	conn := newFakeSender()

	rec := r.Register(conn, "127.0.0.1")
	if rec.ID != conn.ID() {
		t.Errorf("Registered connection ID mismatch")
	}
	if rec.Status != state.ConnUnauthenticated {
		t.Errorf("Expected unauthenticated status, got %s", rec.Status)
	}

	got, found := r.Get(conn.ID())
	if !found {
		t.Fatal("Get failed to find registered connection")
	}
	if got.ID != conn.ID() {
		t.Errorf("Retrieved connection ID mismatch")
	}

	removed := r.Remove(conn.ID())
	if removed == nil {
		t.Fatal("Remove returned nil for a live connection")
	}
	if _, found = r.Get(conn.ID()); found {
		t.Error("Found connection after it should have been removed")
	}

	// Remove is idempotent.
	if again := r.Remove(conn.ID()); again != nil {
		t.Error("Second Remove should return nil")
	}
}

func TestAuthenticateEnrollsChannels(t *testing.T) {
	r := statemanager.NewConnectionRegistry(newTestLogger())
	conn := newFakeSender()
	r.Register(conn, "127.0.0.1")

	rec, err := r.Authenticate(conn.ID(), "u1", state.RoleAdmin)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if rec.Status != state.ConnActive {
		t.Errorf("Expected active status, got %s", rec.Status)
	}

	for _, channel := range []string{state.UserChannel("u1"), state.RoleChannel(state.RoleAdmin), state.AdminChannel} {
		if got := len(r.ChannelConnections(channel)); got != 1 {
			t.Errorf("Expected 1 connection in channel %q, got %d", channel, got)
		}
	}

	r.Remove(conn.ID())
	if got := len(r.ChannelConnections(state.AdminChannel)); got != 0 {
		t.Errorf("Expected admin channel drained after remove, got %d", got)
	}
}

func TestAuthenticateRejectsMissingIdentity(t *testing.T) {
	r := statemanager.NewConnectionRegistry(newTestLogger())
	conn := newFakeSender()
	r.Register(conn, "127.0.0.1")

	if _, err := r.Authenticate(conn.ID(), "", state.RoleUser); err != state.ErrInvalidAuthData {
		t.Errorf("Expected ErrInvalidAuthData for empty userID, got %v", err)
	}
	if _, err := r.Authenticate(conn.ID(), "u1", ""); err != state.ErrInvalidAuthData {
		t.Errorf("Expected ErrInvalidAuthData for empty role, got %v", err)
	}
	if _, err := r.Authenticate(uuid.New(), "u1", state.RoleUser); err != state.ErrUnknownConnection {
		t.Errorf("Expected ErrUnknownConnection, got %v", err)
	}
}

func TestUserConnectionCountAndOldest(t *testing.T) {
	r := statemanager.NewConnectionRegistry(newTestLogger())
	userID := "user-cycle"
	conn1, conn2 := newFakeSender(), newFakeSender()

	first := r.Register(conn1, "1.1.1.1")
	r.Register(conn2, "2.2.2.2")
	// Order Connect timestamps explicitly: map iteration must not decide.
	second, _ := r.Get(conn2.ID())
	second.ConnectedAt = first.ConnectedAt.Add(5 * time.Millisecond)

	r.Authenticate(conn1.ID(), userID, state.RoleUser)
	r.Authenticate(conn2.ID(), userID, state.RoleUser)

	if count := r.UserConnectionCount(userID); count != 2 {
		t.Errorf("Expected connection count 2, got %d", count)
	}

	oldest, found := r.FindOldestUserConnection(userID)
	if !found {
		t.Fatal("Expected to find oldest connection")
	}
	if oldest.ID != conn1.ID() {
		t.Errorf("Expected oldest connection %s, got %s", conn1.ID(), oldest.ID)
	}

	r.Remove(conn1.ID())
	if count := r.UserConnectionCount(userID); count != 1 {
		t.Errorf("Expected connection count 1 after remove, got %d", count)
	}
}

func TestCounts(t *testing.T) {
	r := statemanager.NewConnectionRegistry(newTestLogger())

	anon := newFakeSender()
	userA, userB, admin := newFakeSender(), newFakeSender(), newFakeSender()
	r.Register(anon, "1.1.1.1")
	r.Register(userA, "1.1.1.2")
	r.Register(userB, "1.1.1.3")
	r.Register(admin, "1.1.1.4")

	r.Authenticate(userA.ID(), "u1", state.RoleUser)
	r.Authenticate(userB.ID(), "u1", state.RoleUser) // second device, same user
	r.Authenticate(admin.ID(), "a1", state.RoleAdmin)

	counts := r.Counts()
	if counts.TotalConnections != 4 {
		t.Errorf("Expected 4 total connections, got %d", counts.TotalConnections)
	}
	if counts.AuthenticatedUsers != 2 {
		t.Errorf("Expected 2 authenticated users, got %d", counts.AuthenticatedUsers)
	}
	if counts.AdminUsers != 1 {
		t.Errorf("Expected 1 admin user, got %d", counts.AdminUsers)
	}
}
