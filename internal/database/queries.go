package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	roomColumns = "id, room_id, name, customer_id, support_staff_id, is_active, seq_id, last_message_at, created_at, updated_at"

	staffProfileQuery = "SELECT s.user_id, a.username, s.is_online, s.is_available, s.max_concurrent_chats, s.last_activity, " +
		"(SELECT COUNT(*) FROM chat_rooms r WHERE r.support_staff_id = s.user_id AND r.is_active) AS current_chat_count " +
		"FROM support_staff s JOIN accounts a ON a.id = s.user_id"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (Room, error) {
	var (
		room          Room
		staffId       sql.NullInt64
		lastMessageAt sql.NullTime
	)

	err := row.Scan(
		&room.Id,
		&room.RoomId,
		&room.Name,
		&room.CustomerId,
		&staffId,
		&room.IsActive,
		&room.SeqId,
		&lastMessageAt,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	room.SupportStaffId = int(staffId.Int64)
	room.LastMessageAt = lastMessageAt.Time
	return room, nil
}

func scanStaffProfile(row rowScanner) (StaffProfile, error) {
	var p StaffProfile
	err := row.Scan(
		&p.UserId,
		&p.Username,
		&p.IsOnline,
		&p.IsAvailable,
		&p.MaxConcurrentChats,
		&p.LastActivity,
		&p.CurrentChatCount,
	)
	return p, err
}

func (db *PgSupportChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := Now()
	res := db.conn.QueryRowContext(
		ctx,
		"INSERT INTO accounts (username, email, password_hash, is_staff, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, username, email, is_staff, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.IsStaff,
		now,
		now,
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.IsStaff,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicateUser
	}

	return u, err
}

func (db *PgSupportChatRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT id, username, email, is_staff, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.IsStaff,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, notFound(err)
}

func (db *PgSupportChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT id, username, email, password_hash, is_staff, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.IsStaff,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, notFound(err)
}

func (db *PgSupportChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	now := Now()
	row := db.conn.QueryRowContext(
		ctx,
		"INSERT INTO chat_rooms (room_id, name, customer_id, is_active, created_at, updated_at) "+
			"VALUES ($1, $2, $3, TRUE, $4, $5) RETURNING "+roomColumns,
		params.RoomId,
		params.Name,
		params.CustomerId,
		now,
		now,
	)

	room, err := scanRoom(row)
	if isUniqueViolation(err) {
		return Room{}, ErrDuplicateRoomId
	}

	return room, err
}

func (db *PgSupportChatRepository) GetRoomByRoomId(ctx context.Context, roomId string) (Room, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE room_id = $1 LIMIT 1",
		roomId,
	)

	room, err := scanRoom(row)
	return room, notFound(err)
}

// AssignStaff sets the room's staff only if it is unset or already equal to
// staffId. The conditional UPDATE is the compare-and-set that lets exactly one
// of several racing staff members win.
func (db *PgSupportChatRepository) AssignStaff(ctx context.Context, id, staffId int) (Room, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"UPDATE chat_rooms SET support_staff_id = $2, "+
			"updated_at = CASE WHEN support_staff_id IS NULL THEN $3 ELSE updated_at END "+
			"WHERE id = $1 AND (support_staff_id IS NULL OR support_staff_id = $2) RETURNING "+roomColumns,
		id,
		staffId,
		Now(),
	)

	room, err := scanRoom(row)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Room{}, err
	}

	var exists int
	err = db.conn.QueryRowContext(ctx, "SELECT id FROM chat_rooms WHERE id = $1", id).Scan(&exists)
	if err != nil {
		return Room{}, notFound(err)
	}

	return Room{}, ErrAlreadyAssigned
}

func (db *PgSupportChatRepository) CloseRoom(ctx context.Context, id int) (Room, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"UPDATE chat_rooms SET is_active = FALSE, "+
			"updated_at = CASE WHEN is_active THEN $2 ELSE updated_at END "+
			"WHERE id = $1 RETURNING "+roomColumns,
		id,
		Now(),
	)

	room, err := scanRoom(row)
	return room, notFound(err)
}

func (db *PgSupportChatRepository) listRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgSupportChatRepository) ListActiveRoomsForStaff(ctx context.Context, staffId int) ([]Room, error) {
	return db.listRooms(
		ctx,
		"SELECT "+roomColumns+" FROM chat_rooms "+
			"WHERE is_active AND (support_staff_id = $1 OR support_staff_id IS NULL) "+
			"ORDER BY updated_at DESC, id DESC",
		staffId,
	)
}

func (db *PgSupportChatRepository) ListActiveRoomsForCustomer(ctx context.Context, customerId int) ([]Room, error) {
	return db.listRooms(
		ctx,
		"SELECT "+roomColumns+" FROM chat_rooms "+
			"WHERE is_active AND customer_id = $1 "+
			"ORDER BY updated_at DESC, id DESC",
		customerId,
	)
}

// CreateMessage locks the room row so that the sequence number and timestamp
// are assigned in insertion order even with concurrent writers.
func (db *PgSupportChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (msg Message, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var (
		active bool
		seqId  int
		lastAt sql.NullTime
	)
	err = tx.QueryRowContext(
		ctx,
		"SELECT is_active, seq_id, last_message_at FROM chat_rooms WHERE id = $1 FOR UPDATE",
		params.RoomId,
	).Scan(&active, &seqId, &lastAt)
	if err != nil {
		err = notFound(err)
		return Message{}, err
	}

	if !active {
		err = ErrRoomClosed
		return Message{}, err
	}

	msg = Message{
		SeqId:     seqId + 1,
		RoomId:    params.RoomId,
		SenderId:  params.SenderId,
		Content:   params.Content,
		CreatedAt: nextMessageTime(lastAt.Time),
	}

	err = tx.QueryRowContext(
		ctx,
		"INSERT INTO chat_messages (room_id, seq_id, sender_id, message, is_read, created_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id",
		msg.RoomId,
		msg.SeqId,
		msg.SenderId,
		msg.Content,
		msg.CreatedAt,
	).Scan(&msg.Id)
	if err != nil {
		return Message{}, err
	}

	_, err = tx.ExecContext(
		ctx,
		"UPDATE chat_rooms SET seq_id = $2, last_message_at = $3, updated_at = $3 WHERE id = $1",
		msg.RoomId,
		msg.SeqId,
		msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgSupportChatRepository) MarkRead(ctx context.Context, roomId, readerId int) (int, error) {
	res, err := db.conn.ExecContext(
		ctx,
		"UPDATE chat_messages SET is_read = TRUE WHERE room_id = $1 AND is_read = FALSE AND sender_id <> $2",
		roomId,
		readerId,
	)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}

func (db *PgSupportChatRepository) GetMessages(ctx context.Context, roomId int) ([]Message, error) {
	rows, err := db.conn.QueryContext(
		ctx,
		"SELECT id, seq_id, room_id, sender_id, message, is_read, created_at FROM chat_messages "+
			"WHERE room_id = $1 ORDER BY seq_id ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.SeqId, &msg.RoomId, &msg.SenderId, &msg.Content, &msg.IsRead, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgSupportChatRepository) CreateStaffProfile(ctx context.Context, userId, maxChats int) (StaffProfile, error) {
	_, err := db.conn.ExecContext(
		ctx,
		"INSERT INTO support_staff (user_id, is_online, is_available, max_concurrent_chats, last_activity) "+
			"VALUES ($1, FALSE, TRUE, $2, $3) ON CONFLICT (user_id) DO NOTHING",
		userId,
		maxChats,
		Now(),
	)
	if err != nil {
		return StaffProfile{}, err
	}

	return db.GetStaffProfile(ctx, userId)
}

func (db *PgSupportChatRepository) GetStaffProfile(ctx context.Context, userId int) (StaffProfile, error) {
	row := db.conn.QueryRowContext(ctx, staffProfileQuery+" WHERE s.user_id = $1", userId)

	p, err := scanStaffProfile(row)
	return p, notFound(err)
}

func (db *PgSupportChatRepository) UpdateStaffStatus(ctx context.Context, params UpdateStaffStatusParams) (StaffProfile, error) {
	res, err := db.conn.ExecContext(
		ctx,
		"UPDATE support_staff SET is_online = COALESCE($2, is_online), "+
			"is_available = COALESCE($3, is_available), last_activity = $4 WHERE user_id = $1",
		params.UserId,
		params.IsOnline,
		params.IsAvailable,
		Now(),
	)
	if err != nil {
		return StaffProfile{}, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return StaffProfile{}, ErrNotFound
	}

	return db.GetStaffProfile(ctx, params.UserId)
}

func (db *PgSupportChatRepository) ListAvailableStaff(ctx context.Context) ([]StaffProfile, error) {
	rows, err := db.conn.QueryContext(ctx, staffProfileQuery+" WHERE s.is_online AND s.is_available ORDER BY a.username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]StaffProfile, 0)
	for rows.Next() {
		p, err := scanStaffProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staff profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}
