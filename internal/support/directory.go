package support

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/npezzotti/go-supportchat/internal/cache"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/teris-io/shortid"
)

const maxRoomIdAttempts = 5

// Authorize is the single access rule for rooms: the owning customer, the
// assigned staff member, or any staff member while the room is unassigned.
func Authorize(user types.User, room database.Room) bool {
	return user.Id == room.CustomerId ||
		(room.Assigned() && user.Id == room.SupportStaffId) ||
		(user.IsStaff() && !room.Assigned())
}

type Directory struct {
	log       *log.Logger
	db        database.SupportChatRepository
	cache     cache.RoomListCache
	newRoomId func() (string, error)
}

func NewDirectory(logger *log.Logger, db database.SupportChatRepository, c cache.RoomListCache) *Directory {
	return &Directory{
		log:       logger,
		db:        db,
		cache:     c,
		newRoomId: shortid.Generate,
	}
}

// CreateRoom opens an unassigned, active room owned by customer. Room ids are
// regenerated on collision.
func (d *Directory) CreateRoom(ctx context.Context, customer types.User, name string) (database.Room, error) {
	if customer.IsStaff() {
		return database.Room{}, ErrForbidden
	}

	for attempt := 0; attempt < maxRoomIdAttempts; attempt++ {
		roomId, err := d.newRoomId()
		if err != nil {
			return database.Room{}, fmt.Errorf("generate room id: %w", err)
		}

		roomName := name
		if roomName == "" {
			roomName = "Chat " + roomId
		}

		room, err := d.db.CreateRoom(ctx, database.CreateRoomParams{
			RoomId:     roomId,
			Name:       roomName,
			CustomerId: customer.Id,
		})
		if errors.Is(err, database.ErrDuplicateRoomId) {
			d.log.Printf("room id %q already taken, regenerating", roomId)
			continue
		}
		if err != nil {
			return database.Room{}, fmt.Errorf("create room: %w", err)
		}

		d.cache.Invalidate(ctx)
		return room, nil
	}

	return database.Room{}, fmt.Errorf("create room: no unique room id after %d attempts", maxRoomIdAttempts)
}

func (d *Directory) GetRoom(ctx context.Context, roomId string) (database.Room, error) {
	return d.db.GetRoomByRoomId(ctx, roomId)
}

// AuthorizedRoom fetches a room and applies Authorize for user.
func (d *Directory) AuthorizedRoom(ctx context.Context, user types.User, roomId string) (database.Room, error) {
	room, err := d.db.GetRoomByRoomId(ctx, roomId)
	if err != nil {
		return database.Room{}, err
	}

	if !Authorize(user, room) {
		return database.Room{}, ErrForbidden
	}

	return room, nil
}

// AssignStaff binds staff to room once. Re-assigning the same staff is a
// no-op; assigning anyone else after the fact yields ErrAlreadyAssigned.
// Staff capacity is not consulted.
func (d *Directory) AssignStaff(ctx context.Context, room database.Room, staff types.User) (database.Room, error) {
	if !staff.IsStaff() {
		return database.Room{}, ErrNotStaff
	}

	if room.Assigned() && room.SupportStaffId != staff.Id {
		return database.Room{}, ErrAlreadyAssigned
	}

	assigned, err := d.db.AssignStaff(ctx, room.Id, staff.Id)
	if err != nil {
		return database.Room{}, err
	}

	if !room.Assigned() {
		d.log.Printf("assigned %q to room %q", staff.Username, room.RoomId)
		d.cache.Invalidate(ctx)
	}

	return assigned, nil
}

func (d *Directory) Close(ctx context.Context, room database.Room) (database.Room, error) {
	closed, err := d.db.CloseRoom(ctx, room.Id)
	if err != nil {
		return database.Room{}, err
	}

	if room.IsActive {
		d.cache.Invalidate(ctx)
	}

	return closed, nil
}

// ListRoomsFor returns active rooms visible to user, most recently active
// first. Staff see their own rooms plus unassigned ones.
func (d *Directory) ListRoomsFor(ctx context.Context, user types.User) ([]database.Room, error) {
	rooms, version, ok := d.cache.GetRooms(ctx, user)
	if ok {
		return rooms, nil
	}

	var err error
	if user.IsStaff() {
		rooms, err = d.db.ListActiveRoomsForStaff(ctx, user.Id)
	} else {
		rooms, err = d.db.ListActiveRoomsForCustomer(ctx, user.Id)
	}
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	d.cache.SetRooms(ctx, user, version, rooms)
	return rooms, nil
}
