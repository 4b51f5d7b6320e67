package support

import (
	"context"
	"log"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/types"
)

// StaffTracker exposes staff presence and capacity. Capacity is advisory and
// is never enforced on assignment.
type StaffTracker struct {
	log *log.Logger
	db  database.SupportChatRepository
}

func NewStaffTracker(logger *log.Logger, db database.SupportChatRepository) *StaffTracker {
	return &StaffTracker{
		log: logger,
		db:  db,
	}
}

// SetStatus updates whichever flags are non-nil and always records activity.
func (s *StaffTracker) SetStatus(ctx context.Context, staff types.User, online, available *bool) (database.StaffProfile, error) {
	if !staff.IsStaff() {
		return database.StaffProfile{}, ErrNotStaff
	}

	return s.db.UpdateStaffStatus(ctx, database.UpdateStaffStatusParams{
		UserId:      staff.Id,
		IsOnline:    online,
		IsAvailable: available,
	})
}

func (s *StaffTracker) Profile(ctx context.Context, staff types.User) (database.StaffProfile, error) {
	if !staff.IsStaff() {
		return database.StaffProfile{}, ErrNotStaff
	}

	return s.db.GetStaffProfile(ctx, staff.Id)
}

func (s *StaffTracker) CanTakeNewChat(ctx context.Context, staff types.User) (bool, error) {
	p, err := s.Profile(ctx, staff)
	if err != nil {
		return false, err
	}
	return p.CanTakeNewChat(), nil
}

func (s *StaffTracker) ListAvailable(ctx context.Context) ([]database.StaffProfile, error) {
	return s.db.ListAvailableStaff(ctx)
}
