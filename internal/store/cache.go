package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tetriduel/internal/model"
)

// cacheTTL mirrors the teacher's one-hour room cache expiry in
// services/room_service.go (CreateRoom -> rs.redis.Expire(..., time.Hour)).
const cacheTTL = time.Hour

// CachedStore fronts a durable Store with a Redis read-through cache for
// get_user / get_room, following the teacher's RoomService cache-aside
// shape: read cache, fall back to the backing store on miss, populate on
// the way out. Writes go straight through and invalidate the cache key.
type CachedStore struct {
	Store
	redis *redis.Client
}

// NewCachedStore wraps backing with a Redis cache. backing may be a
// *Postgres or a *Memory; both satisfy Store.
func NewCachedStore(backing Store, rdb *redis.Client) *CachedStore {
	return &CachedStore{Store: backing, redis: rdb}
}

func userCacheKey(id int64) string { return fmt.Sprintf("user:%d", id) }
func roomCacheKey(id int64) string { return fmt.Sprintf("room:%d", id) }

func (c *CachedStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	key := userCacheKey(id)
	if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var u model.User
		if json.Unmarshal(raw, &u) == nil {
			return &u, nil
		}
	}

	u, err := c.Store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(u); err == nil {
		c.redis.Set(ctx, key, raw, cacheTTL)
	}
	return u, nil
}

func (c *CachedStore) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	key := roomCacheKey(id)
	if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var r model.Room
		if json.Unmarshal(raw, &r) == nil {
			return &r, nil
		}
	}

	r, err := c.Store.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(r); err == nil {
		c.redis.Set(ctx, key, raw, cacheTTL)
	}
	return r, nil
}

func (c *CachedStore) LoginUser(ctx context.Context, email, passwordHash string) (*model.User, error) {
	u, err := c.Store.LoginUser(ctx, email, passwordHash)
	if err != nil {
		return nil, err
	}
	c.redis.Del(ctx, userCacheKey(u.ID))
	return u, nil
}

func (c *CachedStore) UpdateRoom(ctx context.Context, id int64, patch model.RoomPatch) (*model.Room, error) {
	r, err := c.Store.UpdateRoom(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	c.redis.Del(ctx, roomCacheKey(id))
	return r, nil
}

func (c *CachedStore) DeleteRoom(ctx context.Context, id int64) error {
	if err := c.Store.DeleteRoom(ctx, id); err != nil {
		return err
	}
	c.redis.Del(ctx, roomCacheKey(id))
	return nil
}
