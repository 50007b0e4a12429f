package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldOnline   = "is_online"
	fieldLastSeen = "last_seen"
	fieldRoom     = "current_room"
)

// RedisRepo stores one hash per user: <prefix>presence:<user_id>.
type RedisRepo struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRepo(client *redis.Client, keyPrefix string) *RedisRepo {
	if client == nil {
		panic("redis client cannot be nil for presence.RedisRepo")
	}
	if keyPrefix == "" {
		keyPrefix = "ls:"
	}
	return &RedisRepo{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRepo) key(userID string) string {
	return fmt.Sprintf("%spresence:%s", r.keyPrefix, userID)
}

func (r *RedisRepo) Get(ctx context.Context, userID string) (Presence, bool, error) {
	m, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return Presence{}, false, fmt.Errorf("redis: hgetall %s: %w", r.key(userID), err)
	}
	if len(m) == 0 {
		return Presence{}, false, nil
	}
	return decodeHash(userID, m), true, nil
}

func (r *RedisRepo) Apply(ctx context.Context, u Update) (Presence, error) {
	key := r.key(u.UserID)
	online := "0"
	if u.Online {
		online = "1"
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fieldOnline, online, fieldLastSeen, u.At.Format(time.RFC3339Nano))
	switch {
	case !u.Online:
		pipe.HDel(ctx, key, fieldRoom)
	case u.Room != nil && *u.Room == "":
		pipe.HDel(ctx, key, fieldRoom)
	case u.Room != nil:
		pipe.HSet(ctx, key, fieldRoom, *u.Room)
	}
	all := pipe.HGetAll(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Presence{}, fmt.Errorf("redis: apply presence %s: %w", key, err)
	}
	return decodeHash(u.UserID, all.Val()), nil
}

func decodeHash(userID string, m map[string]string) Presence {
	p := Presence{UserID: userID, IsOnline: m[fieldOnline] == "1", CurrentRoom: m[fieldRoom]}
	if ts, err := time.Parse(time.RFC3339Nano, m[fieldLastSeen]); err == nil {
		p.LastSeen = ts
	}
	return p
}
