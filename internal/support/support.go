// Package support holds the chat domain: room access and assignment, the
// ordered message log, and staff presence.
package support

import (
	"log"

	"github.com/npezzotti/go-supportchat/internal/cache"
	"github.com/npezzotti/go-supportchat/internal/database"
)

type Services struct {
	Rooms    *Directory
	Messages *MessageLog
	Staff    *StaffTracker
}

func NewServices(logger *log.Logger, db database.SupportChatRepository, c cache.RoomListCache) *Services {
	if c == nil {
		c = cache.NopRoomListCache{}
	}

	return &Services{
		Rooms:    NewDirectory(logger, db, c),
		Messages: NewMessageLog(logger, db, c),
		Staff:    NewStaffTracker(logger, db),
	}
}
