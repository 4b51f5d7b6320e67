package support

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/npezzotti/go-supportchat/internal/cache"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/types"
)

type MessageLog struct {
	log   *log.Logger
	db    database.SupportChatRepository
	cache cache.RoomListCache
}

func NewMessageLog(logger *log.Logger, db database.SupportChatRepository, c cache.RoomListCache) *MessageLog {
	return &MessageLog{
		log:   logger,
		db:    db,
		cache: c,
	}
}

// Append persists body with a server-assigned sequence and timestamp.
// Timestamps never precede the room's previous message.
func (l *MessageLog) Append(ctx context.Context, room database.Room, sender types.User, body string) (database.Message, error) {
	if strings.TrimSpace(body) == "" {
		return database.Message{}, ErrEmptyMessage
	}

	if !room.IsActive {
		return database.Message{}, ErrRoomClosed
	}

	msg, err := l.db.CreateMessage(ctx, database.CreateMessageParams{
		RoomId:   room.Id,
		SenderId: sender.Id,
		Content:  body,
	})
	if err != nil {
		return database.Message{}, err
	}

	// last activity changed, so listings reorder
	l.cache.Invalidate(ctx)
	return msg, nil
}

// MarkRead flags every unread message in room not sent by reader and
// returns how many changed.
func (l *MessageLog) MarkRead(ctx context.Context, room database.Room, reader types.User) (int, error) {
	n, err := l.db.MarkRead(ctx, room.Id, reader.Id)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// History returns the room's messages in append order.
func (l *MessageLog) History(ctx context.Context, room database.Room) ([]database.Message, error) {
	msgs, err := l.db.GetMessages(ctx, room.Id)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	slices.SortStableFunc(msgs, func(a, b database.Message) int {
		return a.SeqId - b.SeqId
	})
	return msgs, nil
}
