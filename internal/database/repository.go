package database

import (
	"context"
	"errors"
	"time"
)

const DefaultMaxConcurrentChats = 3

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyAssigned = errors.New("room already has an assigned support staff")
	ErrRoomClosed      = errors.New("room is closed")
	ErrDuplicateRoomId = errors.New("room id already exists")
	ErrDuplicateUser   = errors.New("account already exists")
)

type SupportChatRepository interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, id int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomByRoomId(ctx context.Context, roomId string) (Room, error)
	AssignStaff(ctx context.Context, id, staffId int) (Room, error)
	CloseRoom(ctx context.Context, id int) (Room, error)
	ListActiveRoomsForStaff(ctx context.Context, staffId int) ([]Room, error)
	ListActiveRoomsForCustomer(ctx context.Context, customerId int) ([]Room, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	MarkRead(ctx context.Context, roomId, readerId int) (int, error)
	GetMessages(ctx context.Context, roomId int) ([]Message, error)

	CreateStaffProfile(ctx context.Context, userId, maxChats int) (StaffProfile, error)
	GetStaffProfile(ctx context.Context, userId int) (StaffProfile, error)
	UpdateStaffStatus(ctx context.Context, params UpdateStaffStatusParams) (StaffProfile, error)
	ListAvailableStaff(ctx context.Context) ([]StaffProfile, error)
}

// Now is the persistence clock, truncated to the precision Postgres stores.
var Now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// nextMessageTime never goes backwards relative to the previous message in a room.
func nextMessageTime(last time.Time) time.Time {
	ts := Now()
	if ts.Before(last) {
		return last
	}
	return ts
}
