// Package store defines the persistence service's storage contract and
// its concrete backends: a Postgres-backed durable store fronted by a
// Redis read-through cache for hot lookups, and an in-memory store used
// in tests and for exercising business logic without a database.
package store

import (
	"context"
	"time"

	"tetriduel/internal/model"
)

// Store is the full storage surface the persistence service dispatches
// onto. All mutations are serialized by the implementation; readers
// observe a consistent snapshot per call.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*model.User, error)
	LoginUser(ctx context.Context, email, passwordHash string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	CreateRoom(ctx context.Context, name string, hostUserID int64, vis model.Visibility) (*model.Room, error)
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	ListRooms(ctx context.Context, vis model.Visibility) ([]*model.Room, error)
	UpdateRoom(ctx context.Context, id int64, patch model.RoomPatch) (*model.Room, error)
	DeleteRoom(ctx context.Context, id int64) error

	CreateGameLog(ctx context.Context, log *model.MatchLog) (*model.MatchLog, error)
	ListGameLogs(ctx context.Context, userID int64) ([]*model.MatchLog, error)
}

// Clock lets tests substitute a fixed time source; production callers use
// RealClock.
type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock.
var RealClock Clock = realClock{}
