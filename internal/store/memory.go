package store

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tetriduel/internal/apperr"
	"tetriduel/internal/model"
)

// Memory is an in-process Store guarded by a single mutex, matching the
// "single internal mutex serializes all storage mutations" rule of
// spec §5 for the persistence service. It backs unit tests and can stand
// in for Postgres+Redis in a single-process deployment.
type Memory struct {
	mu sync.Mutex

	clock Clock

	nextUserID int64
	nextRoomID int64
	users      map[int64]*model.User
	usersByEmail map[string]int64 // lowercased email -> id
	rooms      map[int64]*model.Room
	logs       []*model.MatchLog
}

// NewMemory constructs an empty in-memory store.
func NewMemory(clock Clock) *Memory {
	if clock == nil {
		clock = RealClock
	}
	return &Memory{
		clock:        clock,
		users:        make(map[int64]*model.User),
		usersByEmail: make(map[string]int64),
		rooms:        make(map[int64]*model.Room),
	}
}

func (m *Memory) CreateUser(ctx context.Context, name, email, passwordHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(email)
	if _, taken := m.usersByEmail[key]; taken {
		return nil, apperr.New(apperr.Conflict, "email %s already registered", email)
	}

	m.nextUserID++
	u := &model.User{
		ID:           m.nextUserID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    m.clock.Now(),
	}
	m.users[u.ID] = u
	m.usersByEmail[key] = u.ID
	cp := *u
	return &cp, nil
}

func (m *Memory) LoginUser(ctx context.Context, email, passwordHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, apperr.New(apperr.InvalidCredentials, "no such user")
	}
	u := m.users[id]
	if u.PasswordHash != passwordHash {
		return nil, apperr.New(apperr.InvalidCredentials, "password mismatch")
	}
	u.LastLoginAt = m.clock.Now()
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUser(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user %d not found", id)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user %s not found", email)
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) CreateRoom(ctx context.Context, name string, hostUserID int64, vis model.Visibility) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRoomID++
	r := &model.Room{
		ID:         m.nextRoomID,
		Name:       name,
		HostUserID: hostUserID,
		Visibility: vis,
		Members:    []int64{hostUserID},
		Status:     model.RoomIdle,
		CreatedAt:  m.clock.Now(),
	}
	m.rooms[r.ID] = r
	return cloneRoom(r), nil
}

func (m *Memory) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "room %d not found", id)
	}
	return cloneRoom(r), nil
}

func (m *Memory) ListRooms(ctx context.Context, vis model.Visibility) ([]*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Room
	for _, r := range m.rooms {
		if vis == "" || r.Visibility == vis {
			out = append(out, cloneRoom(r))
		}
	}
	return out, nil
}

func (m *Memory) UpdateRoom(ctx context.Context, id int64, patch model.RoomPatch) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "room %d not found", id)
	}
	if patch.Members != nil {
		r.Members = patch.Members
	}
	if patch.Status != "" {
		r.Status = patch.Status
	}
	if patch.Invited != nil {
		r.Invited = patch.Invited
	}
	if patch.MatchID != nil {
		r.MatchID = *patch.MatchID
	}
	return cloneRoom(r), nil
}

func (m *Memory) DeleteRoom(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[id]; !ok {
		return apperr.New(apperr.NotFound, "room %d not found", id)
	}
	delete(m.rooms, id)
	return nil
}

func (m *Memory) CreateGameLog(ctx context.Context, log *model.MatchLog) (*model.MatchLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *log
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.logs = append(m.logs, &cp)
	out := cp
	return &out, nil
}

func (m *Memory) ListGameLogs(ctx context.Context, userID int64) ([]*model.MatchLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.MatchLog
	for _, l := range m.logs {
		if userID == 0 {
			cp := *l
			out = append(out, &cp)
			continue
		}
		for _, u := range l.Users {
			if u == userID {
				cp := *l
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func cloneRoom(r *model.Room) *model.Room {
	cp := *r
	cp.Members = append([]int64(nil), r.Members...)
	cp.Invited = append([]int64(nil), r.Invited...)
	return &cp
}
