package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/support"
	"github.com/npezzotti/go-supportchat/internal/testutil"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	mu     sync.Mutex
	values map[string]int
}

func newFakeStats() *fakeStats {
	return &fakeStats{values: make(map[string]int)}
}

func (f *fakeStats) Incr(name string) { f.add(name, 1) }
func (f *fakeStats) Decr(name string) { f.add(name, -1) }
func (f *fakeStats) RegisterMetric(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = 0
}
func (f *fakeStats) Run() {}

func (f *fakeStats) add(name string, v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] += v
}

func (f *fakeStats) value(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

type testEnv struct {
	cs       *ChatServer
	svc      *support.Services
	stats    *fakeStats
	customer types.User
	staff    types.User
	room     database.Room
}

func newTestEnv(t *testing.T, idle time.Duration) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := testutil.TestLogger(t)

	db := database.NewMemorySupportChatRepository()
	svc := support.NewServices(logger, db, nil)
	fs := newFakeStats()

	cs := NewChatServer(logger, svc, fs)
	cs.idleRoomTimeout = idle
	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	c, err := db.CreateAccount(ctx, database.CreateAccountParams{Username: "alice", EmailAddress: "alice@example.com"})
	require.NoError(t, err)
	s, err := db.CreateAccount(ctx, database.CreateAccountParams{Username: "sam", EmailAddress: "sam@example.com", IsStaff: true})
	require.NoError(t, err)

	customer := types.User{Id: c.Id, Username: c.Username, Role: types.RoleCustomer}
	staff := types.User{Id: s.Id, Username: s.Username, Role: types.RoleStaff}

	room, err := svc.Rooms.CreateRoom(ctx, customer, "")
	require.NoError(t, err)
	room, err = svc.Rooms.AssignStaff(ctx, room, staff)
	require.NoError(t, err)

	return &testEnv{
		cs:       cs,
		svc:      svc,
		stats:    fs,
		customer: customer,
		staff:    staff,
		room:     room,
	}
}

// join adds a connectionless client; events are read straight off its queue.
func (e *testEnv) join(t *testing.T, user types.User) *Client {
	t.Helper()
	c := NewClient(user, nil, e.cs.log)
	require.NoError(t, e.cs.JoinRoom(context.Background(), c, e.room))
	return c
}

func recv(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message to %q", c.user.Username)
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Errorf("unexpected message to %q: %+v", c.user.Username, msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func chatMessage(c *Client, body string) *ClientMessage {
	return &ClientMessage{Type: TypeChatMessage, Message: body, sender: c.user, client: c}
}
