package types

import (
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// User is a verified identity. Role is RoleStaff only when the account
// has a support profile.
type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

func (u User) IsStaff() bool {
	return u.Role == RoleStaff
}

type Room struct {
	Id             int       `json:"id"`
	RoomId         string    `json:"room_id"`
	Name           string    `json:"name"`
	CustomerId     int       `json:"customer_id"`
	SupportStaffId *int      `json:"support_staff_id"`
	IsActive       bool      `json:"is_active"`
	Messages       []Message `json:"messages,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Message struct {
	Id        int       `json:"id"`
	SeqId     int       `json:"seq_id"`
	RoomId    string    `json:"room_id"`
	SenderId  int       `json:"sender_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	Timestamp time.Time `json:"timestamp"`
}

type StaffProfile struct {
	UserId             int       `json:"user_id"`
	Username           string    `json:"username"`
	IsOnline           bool      `json:"is_online"`
	IsAvailable        bool      `json:"is_available"`
	MaxConcurrentChats int       `json:"max_concurrent_chats"`
	CurrentChatCount   int       `json:"current_chat_count"`
	CanTakeNewChat     bool      `json:"can_take_new_chat"`
	LastActivity       time.Time `json:"last_activity"`
}
