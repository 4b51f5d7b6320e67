package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id     int
	RoomId string
	Name   string
	// CustomerId owns the room.
	CustomerId int
	// SupportStaffId is zero while the room is unassigned.
	SupportStaffId int
	IsActive       bool
	SeqId          int
	LastMessageAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r Room) Assigned() bool {
	return r.SupportStaffId != 0
}

type Message struct {
	Id        int
	SeqId     int
	RoomId    int
	SenderId  int
	Content   string
	IsRead    bool
	CreatedAt time.Time
}

type StaffProfile struct {
	UserId             int
	Username           string
	IsOnline           bool
	IsAvailable        bool
	MaxConcurrentChats int
	CurrentChatCount   int
	LastActivity       time.Time
}

// CanTakeNewChat is derived from current state and never stored.
func (p StaffProfile) CanTakeNewChat() bool {
	return p.IsOnline && p.IsAvailable && p.CurrentChatCount < p.MaxConcurrentChats
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	IsStaff      bool
}

type CreateRoomParams struct {
	RoomId     string
	Name       string
	CustomerId int
}

type CreateMessageParams struct {
	RoomId   int
	SenderId int
	Content  string
}

// UpdateStaffStatusParams leaves a field unchanged when it is nil.
type UpdateStaffStatusParams struct {
	UserId      int
	IsOnline    *bool
	IsAvailable *bool
}
