package sessionservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tetriduel/internal/protocol"
)

// presenceTTL bounds how long a stale presence entry survives a session
// service crash that skips the logout/disconnect SREM.
const presenceTTL = time.Hour

// Presence tracks which user ids are online in a set external to this
// process, following the teacher's invite_service.go key-namespacing
// idiom ("invite:%s") so a second session-service instance could
// eventually observe the same set. No cross-instance coordination beyond
// the shared set is implemented.
type Presence interface {
	Add(ctx context.Context, userID int64, name string) error
	Remove(ctx context.Context, userID int64) error
	List(ctx context.Context) ([]protocol.UserRef, error)
}

const presenceSetKey = "presence:online"

func presenceHashKey(id int64) string { return fmt.Sprintf("presence:name:%d", id) }

// RedisPresence is the production Presence backend.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) Add(ctx context.Context, userID int64, name string) error {
	if err := p.rdb.SAdd(ctx, presenceSetKey, userID).Err(); err != nil {
		return err
	}
	return p.rdb.Set(ctx, presenceHashKey(userID), name, presenceTTL).Err()
}

func (p *RedisPresence) Remove(ctx context.Context, userID int64) error {
	p.rdb.Del(ctx, presenceHashKey(userID))
	return p.rdb.SRem(ctx, presenceSetKey, userID).Err()
}

func (p *RedisPresence) List(ctx context.Context) ([]protocol.UserRef, error) {
	ids, err := p.rdb.SMembers(ctx, presenceSetKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.UserRef, 0, len(ids))
	for _, idStr := range ids {
		var id int64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			continue
		}
		name, err := p.rdb.Get(ctx, presenceHashKey(id)).Result()
		if err != nil {
			name = ""
		}
		out = append(out, protocol.UserRef{ID: id, Name: name})
	}
	return out, nil
}

// MemoryPresence is an in-process fallback used when no Redis endpoint is
// configured (e.g. local dev, tests).
type MemoryPresence struct {
	mu    sync.Mutex
	users map[int64]string
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{users: make(map[int64]string)}
}

func (p *MemoryPresence) Add(ctx context.Context, userID int64, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = name
	return nil
}

func (p *MemoryPresence) Remove(ctx context.Context, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, userID)
	return nil
}

func (p *MemoryPresence) List(ctx context.Context) ([]protocol.UserRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.UserRef, 0, len(p.users))
	for id, name := range p.users {
		out = append(out, protocol.UserRef{ID: id, Name: name})
	}
	return out, nil
}
