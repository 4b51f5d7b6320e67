package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/redis/go-redis/v9"
)

const versionKey = "chat_rooms:version"

// NoVersion is returned by GetRooms when the cache version is unknown.
// SetRooms ignores listings stored under it.
const NoVersion int64 = -1

// RoomListCache caches per-identity room listings. It is best effort: any
// failure is logged and treated as a miss.
//
// GetRooms reports the cache version it observed. Callers computing a
// listing after a miss pass that version back to SetRooms, so a listing
// read before an Invalidate is never stored under the newer version.
type RoomListCache interface {
	GetRooms(ctx context.Context, user types.User) (rooms []database.Room, version int64, ok bool)
	SetRooms(ctx context.Context, user types.User, version int64, rooms []database.Room)
	Invalidate(ctx context.Context)
}

type NopRoomListCache struct{}

func (NopRoomListCache) GetRooms(context.Context, types.User) ([]database.Room, int64, bool) {
	return nil, NoVersion, false
}
func (NopRoomListCache) SetRooms(context.Context, types.User, int64, []database.Room) {}
func (NopRoomListCache) Invalidate(context.Context)                                 {}

// RedisRoomListCache namespaces keys by a version counter. Invalidate bumps
// the counter, so stale listings for every user expire together without a
// key scan.
type RedisRoomListCache struct {
	log    *log.Logger
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRoomListCache(logger *log.Logger, addr string, ttl time.Duration) (*RedisRoomListCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisRoomListCacheWithClient(logger, client, ttl), nil
}

func NewRedisRoomListCacheWithClient(logger *log.Logger, client *redis.Client, ttl time.Duration) *RedisRoomListCache {
	return &RedisRoomListCache{
		log:    logger,
		client: client,
		ttl:    ttl,
	}
}

func roomsKey(version int64, user types.User) string {
	return fmt.Sprintf("chat_rooms:%d:%d:%s", version, user.Id, user.Role)
}

func (c *RedisRoomListCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisRoomListCache) GetRooms(ctx context.Context, user types.User) ([]database.Room, int64, bool) {
	v, err := c.version(ctx)
	if err != nil {
		c.log.Println("room cache version:", err)
		return nil, NoVersion, false
	}

	raw, err := c.client.Get(ctx, roomsKey(v, user)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Println("room cache get:", err)
		}
		return nil, v, false
	}

	var rooms []database.Room
	if err := json.Unmarshal([]byte(raw), &rooms); err != nil {
		c.log.Println("room cache decode:", err)
		return nil, v, false
	}

	return rooms, v, true
}

// SetRooms stores rooms under version. A version that has since been
// superseded lands under a key no reader looks up, and expires with the TTL.
func (c *RedisRoomListCache) SetRooms(ctx context.Context, user types.User, version int64, rooms []database.Room) {
	if version < 0 {
		return
	}

	data, err := json.Marshal(rooms)
	if err != nil {
		c.log.Println("room cache encode:", err)
		return
	}

	if err := c.client.Set(ctx, roomsKey(version, user), string(data), c.ttl).Err(); err != nil {
		c.log.Println("room cache set:", err)
	}
}

func (c *RedisRoomListCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		c.log.Println("room cache invalidate:", err)
	}
}

func (c *RedisRoomListCache) Close() error {
	return c.client.Close()
}
