package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryFixture(t *testing.T) (*MemorySupportChatRepository, User, Room) {
	repo := NewMemorySupportChatRepository()
	ctx := context.Background()

	customer, err := repo.CreateAccount(ctx, CreateAccountParams{Username: "customer", EmailAddress: "c@example.com"})
	require.NoError(t, err)

	room, err := repo.CreateRoom(ctx, CreateRoomParams{RoomId: "room1", Name: "Chat room1", CustomerId: customer.Id})
	require.NoError(t, err)

	return repo, customer, room
}

func TestMemoryCreateRoom_Duplicate(t *testing.T) {
	repo, customer, _ := newMemoryFixture(t)

	_, err := repo.CreateRoom(context.Background(), CreateRoomParams{RoomId: "room1", Name: "again", CustomerId: customer.Id})
	assert.ErrorIs(t, err, ErrDuplicateRoomId)
}

func TestMemoryAssignStaff_ExactlyOneWins(t *testing.T) {
	repo, _, room := newMemoryFixture(t)
	ctx := context.Background()

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []int
		rejected int
	)

	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(staffId int) {
			defer wg.Done()
			_, err := repo.AssignStaff(ctx, room.Id, 100+staffId)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, 100+staffId)
			case errors.Is(err, ErrAlreadyAssigned):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1, "expected exactly one staff member to win the assignment")
	assert.Equal(t, n-1, rejected, "expected every other staff member to be rejected")

	got, err := repo.GetRoomByRoomId(ctx, room.RoomId)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.SupportStaffId)

	again, err := repo.AssignStaff(ctx, room.Id, winners[0])
	assert.NoError(t, err, "expected re-assigning to the same staff to be idempotent")
	assert.Equal(t, winners[0], again.SupportStaffId)
}

func TestMemoryCreateMessage_Ordering(t *testing.T) {
	repo, customer, room := newMemoryFixture(t)
	ctx := context.Background()

	const senders, perSender = 4, 25
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := repo.CreateMessage(ctx, CreateMessageParams{
					RoomId:   room.Id,
					SenderId: customer.Id + s,
					Content:  fmt.Sprintf("%d-%d", s, i),
				})
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	msgs, err := repo.GetMessages(ctx, room.Id)
	require.NoError(t, err)
	require.Len(t, msgs, senders*perSender)

	for i := 1; i < len(msgs); i++ {
		assert.Equal(t, msgs[i-1].SeqId+1, msgs[i].SeqId, "expected contiguous sequence ids")
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "expected non-decreasing timestamps")
	}
}

func TestMemoryCloseRoom(t *testing.T) {
	repo, customer, room := newMemoryFixture(t)
	ctx := context.Background()

	_, err := repo.CreateMessage(ctx, CreateMessageParams{RoomId: room.Id, SenderId: customer.Id, Content: "hello"})
	require.NoError(t, err)

	closed, err := repo.CloseRoom(ctx, room.Id)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)

	_, err = repo.CloseRoom(ctx, room.Id)
	assert.NoError(t, err, "expected closing a closed room to be a no-op")

	_, err = repo.CreateMessage(ctx, CreateMessageParams{RoomId: room.Id, SenderId: customer.Id, Content: "late"})
	assert.ErrorIs(t, err, ErrRoomClosed)

	msgs, err := repo.GetMessages(ctx, room.Id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "expected history to be unchanged after close")

	_, err = repo.CloseRoom(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryMarkRead_Idempotent(t *testing.T) {
	repo, customer, room := newMemoryFixture(t)
	ctx := context.Background()
	staffId := 500

	for _, sender := range []int{customer.Id, customer.Id, staffId} {
		_, err := repo.CreateMessage(ctx, CreateMessageParams{RoomId: room.Id, SenderId: sender, Content: "x"})
		require.NoError(t, err)
	}

	n, err := repo.MarkRead(ctx, room.Id, staffId)
	assert.NoError(t, err)
	assert.Equal(t, 2, n, "expected only messages from other senders to be marked")

	n, err = repo.MarkRead(ctx, room.Id, staffId)
	assert.NoError(t, err)
	assert.Equal(t, 0, n, "expected second mark read to affect nothing")
}

func TestMemoryListRooms(t *testing.T) {
	repo, customer, room := newMemoryFixture(t)
	ctx := context.Background()

	other, err := repo.CreateRoom(ctx, CreateRoomParams{RoomId: "room2", Name: "Chat room2", CustomerId: customer.Id})
	require.NoError(t, err)
	_, err = repo.AssignStaff(ctx, other.Id, 300)
	require.NoError(t, err)

	// bump room1 so it sorts first
	time.Sleep(2 * time.Millisecond)
	_, err = repo.CreateMessage(ctx, CreateMessageParams{RoomId: room.Id, SenderId: customer.Id, Content: "bump"})
	require.NoError(t, err)

	rooms, err := repo.ListActiveRoomsForCustomer(ctx, customer.Id)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "room1", rooms[0].RoomId, "expected most recently active room first")

	rooms, err = repo.ListActiveRoomsForStaff(ctx, 301)
	require.NoError(t, err)
	require.Len(t, rooms, 1, "expected other staff to see only unassigned rooms")
	assert.Equal(t, "room1", rooms[0].RoomId)

	rooms, err = repo.ListActiveRoomsForStaff(ctx, 300)
	require.NoError(t, err)
	assert.Len(t, rooms, 2, "expected staff to see assigned and unassigned rooms")
}

func TestMemoryStaffProfile(t *testing.T) {
	repo, customer, room := newMemoryFixture(t)
	ctx := context.Background()

	staff, err := repo.CreateAccount(ctx, CreateAccountParams{Username: "agent", EmailAddress: "a@example.com", IsStaff: true})
	require.NoError(t, err)

	p, err := repo.CreateStaffProfile(ctx, staff.Id, 1)
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
	assert.True(t, p.IsAvailable)
	assert.False(t, p.CanTakeNewChat(), "expected offline staff not to take chats")

	online := true
	p, err = repo.UpdateStaffStatus(ctx, UpdateStaffStatusParams{UserId: staff.Id, IsOnline: &online})
	require.NoError(t, err)
	assert.True(t, p.CanTakeNewChat())

	_, err = repo.AssignStaff(ctx, room.Id, staff.Id)
	require.NoError(t, err)

	p, err = repo.GetStaffProfile(ctx, staff.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentChatCount)
	assert.False(t, p.CanTakeNewChat(), "expected staff at capacity not to take chats")

	available, err := repo.ListAvailableStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 1)

	_, err = repo.GetStaffProfile(ctx, customer.Id)
	assert.ErrorIs(t, err, ErrNotFound)
}
