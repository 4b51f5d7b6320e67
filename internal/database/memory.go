package database

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

// MemorySupportChatRepository keeps all state in process. Every method holds
// mu for its full duration, which gives the same atomicity the Postgres
// implementation gets from row locks.
type MemorySupportChatRepository struct {
	mu       sync.Mutex
	accounts map[int]User
	rooms    map[int]Room
	roomIds  map[string]int
	messages map[int][]Message
	staff    map[int]StaffProfile
	nextId   int
}

func NewMemorySupportChatRepository() *MemorySupportChatRepository {
	return &MemorySupportChatRepository{
		accounts: make(map[int]User),
		rooms:    make(map[int]Room),
		roomIds:  make(map[string]int),
		messages: make(map[int][]Message),
		staff:    make(map[int]StaffProfile),
	}
}

func (m *MemorySupportChatRepository) id() int {
	m.nextId++
	return m.nextId
}

func (m *MemorySupportChatRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemorySupportChatRepository) CreateAccount(_ context.Context, params CreateAccountParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.accounts {
		if u.Username == params.Username || strings.EqualFold(u.EmailAddress, params.EmailAddress) {
			return User{}, ErrDuplicateUser
		}
	}

	now := Now()
	u := User{
		Id:           m.id(),
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		IsStaff:      params.IsStaff,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.accounts[u.Id] = u

	return u, nil
}

func (m *MemorySupportChatRepository) GetAccountById(_ context.Context, id int) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.accounts[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemorySupportChatRepository) GetAccountByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.accounts {
		if strings.EqualFold(u.EmailAddress, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *MemorySupportChatRepository) CreateRoom(_ context.Context, params CreateRoomParams) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roomIds[params.RoomId]; ok {
		return Room{}, ErrDuplicateRoomId
	}

	now := Now()
	room := Room{
		Id:         m.id(),
		RoomId:     params.RoomId,
		Name:       params.Name,
		CustomerId: params.CustomerId,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.rooms[room.Id] = room
	m.roomIds[room.RoomId] = room.Id

	return room, nil
}

func (m *MemorySupportChatRepository) GetRoomByRoomId(_ context.Context, roomId string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.roomIds[roomId]
	if !ok {
		return Room{}, ErrNotFound
	}
	return m.rooms[id], nil
}

func (m *MemorySupportChatRepository) AssignStaff(_ context.Context, id, staffId int) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}

	switch room.SupportStaffId {
	case staffId:
		return room, nil
	case 0:
		room.SupportStaffId = staffId
		room.UpdatedAt = Now()
		m.rooms[id] = room
		return room, nil
	default:
		return Room{}, ErrAlreadyAssigned
	}
}

func (m *MemorySupportChatRepository) CloseRoom(_ context.Context, id int) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}

	if room.IsActive {
		room.IsActive = false
		room.UpdatedAt = Now()
		m.rooms[id] = room
	}
	return room, nil
}

func (m *MemorySupportChatRepository) listRooms(match func(Room) bool) []Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]Room, 0)
	for _, room := range m.rooms {
		if room.IsActive && match(room) {
			rooms = append(rooms, room)
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].Id > rooms[j].Id
		}
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms
}

func (m *MemorySupportChatRepository) ListActiveRoomsForStaff(_ context.Context, staffId int) ([]Room, error) {
	return m.listRooms(func(r Room) bool {
		return r.SupportStaffId == staffId || !r.Assigned()
	}), nil
}

func (m *MemorySupportChatRepository) ListActiveRoomsForCustomer(_ context.Context, customerId int) ([]Room, error) {
	return m.listRooms(func(r Room) bool {
		return r.CustomerId == customerId
	}), nil
}

func (m *MemorySupportChatRepository) CreateMessage(_ context.Context, params CreateMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[params.RoomId]
	if !ok {
		return Message{}, ErrNotFound
	}
	if !room.IsActive {
		return Message{}, ErrRoomClosed
	}

	msg := Message{
		Id:        m.id(),
		SeqId:     room.SeqId + 1,
		RoomId:    room.Id,
		SenderId:  params.SenderId,
		Content:   params.Content,
		CreatedAt: nextMessageTime(room.LastMessageAt),
	}
	m.messages[room.Id] = append(m.messages[room.Id], msg)

	room.SeqId = msg.SeqId
	room.LastMessageAt = msg.CreatedAt
	room.UpdatedAt = msg.CreatedAt
	m.rooms[room.Id] = room

	return msg, nil
}

func (m *MemorySupportChatRepository) MarkRead(_ context.Context, roomId, readerId int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	msgs := m.messages[roomId]
	for i := range msgs {
		if !msgs[i].IsRead && msgs[i].SenderId != readerId {
			msgs[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *MemorySupportChatRepository) GetMessages(_ context.Context, roomId int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.messages[roomId]), nil
}

func (m *MemorySupportChatRepository) CreateStaffProfile(ctx context.Context, userId, maxChats int) (StaffProfile, error) {
	m.mu.Lock()
	u, ok := m.accounts[userId]
	if !ok {
		m.mu.Unlock()
		return StaffProfile{}, ErrNotFound
	}
	if _, exists := m.staff[userId]; !exists {
		m.staff[userId] = StaffProfile{
			UserId:             userId,
			Username:           u.Username,
			IsAvailable:        true,
			MaxConcurrentChats: maxChats,
			LastActivity:       Now(),
		}
	}
	m.mu.Unlock()

	return m.GetStaffProfile(ctx, userId)
}

func (m *MemorySupportChatRepository) GetStaffProfile(_ context.Context, userId int) (StaffProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.staff[userId]
	if !ok {
		return StaffProfile{}, ErrNotFound
	}
	return m.withChatCount(p), nil
}

func (m *MemorySupportChatRepository) UpdateStaffStatus(_ context.Context, params UpdateStaffStatusParams) (StaffProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.staff[params.UserId]
	if !ok {
		return StaffProfile{}, ErrNotFound
	}

	if params.IsOnline != nil {
		p.IsOnline = *params.IsOnline
	}
	if params.IsAvailable != nil {
		p.IsAvailable = *params.IsAvailable
	}
	p.LastActivity = Now()
	m.staff[p.UserId] = p

	return m.withChatCount(p), nil
}

func (m *MemorySupportChatRepository) ListAvailableStaff(_ context.Context) ([]StaffProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles := make([]StaffProfile, 0)
	for _, p := range m.staff {
		if p.IsOnline && p.IsAvailable {
			profiles = append(profiles, m.withChatCount(p))
		}
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Username < profiles[j].Username
	})
	return profiles, nil
}

// withChatCount must be called with mu held.
func (m *MemorySupportChatRepository) withChatCount(p StaffProfile) StaffProfile {
	p.CurrentChatCount = 0
	for _, room := range m.rooms {
		if room.IsActive && room.SupportStaffId == p.UserId {
			p.CurrentChatCount++
		}
	}
	return p
}
