package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockSupportChatRepository struct {
	mock.Mock
}

func (m *MockSupportChatRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSupportChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSupportChatRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSupportChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSupportChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockSupportChatRepository) GetRoomByRoomId(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockSupportChatRepository) AssignStaff(ctx context.Context, id, staffId int) (Room, error) {
	args := m.Called(id, staffId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockSupportChatRepository) CloseRoom(ctx context.Context, id int) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockSupportChatRepository) ListActiveRoomsForStaff(ctx context.Context, staffId int) ([]Room, error) {
	args := m.Called(staffId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockSupportChatRepository) ListActiveRoomsForCustomer(ctx context.Context, customerId int) ([]Room, error) {
	args := m.Called(customerId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockSupportChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSupportChatRepository) MarkRead(ctx context.Context, roomId, readerId int) (int, error) {
	args := m.Called(roomId, readerId)
	return args.Int(0), args.Error(1)
}
func (m *MockSupportChatRepository) GetMessages(ctx context.Context, roomId int) ([]Message, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockSupportChatRepository) CreateStaffProfile(ctx context.Context, userId, maxChats int) (StaffProfile, error) {
	args := m.Called(userId, maxChats)
	return args.Get(0).(StaffProfile), args.Error(1)
}
func (m *MockSupportChatRepository) GetStaffProfile(ctx context.Context, userId int) (StaffProfile, error) {
	args := m.Called(userId)
	return args.Get(0).(StaffProfile), args.Error(1)
}
func (m *MockSupportChatRepository) UpdateStaffStatus(ctx context.Context, params UpdateStaffStatusParams) (StaffProfile, error) {
	args := m.Called(params)
	return args.Get(0).(StaffProfile), args.Error(1)
}
func (m *MockSupportChatRepository) ListAvailableStaff(ctx context.Context) ([]StaffProfile, error) {
	args := m.Called()
	return args.Get(0).([]StaffProfile), args.Error(1)
}
