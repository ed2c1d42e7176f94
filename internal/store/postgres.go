package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"tetriduel/internal/apperr"
	"tetriduel/internal/model"
)

// Postgres is the durable Store backend. It mirrors the teacher's
// database/sql + lib/pq usage in services/room_service.go and
// services/user_service.go: plain parameterized queries, no ORM.
type Postgres struct {
	db    *sql.DB
	clock Clock
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	return &Postgres{db: db, clock: RealClock}, nil
}

// Schema is the DDL this store expects. Applied by an operator's
// migration step; kept here as the single source of truth for columns.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	email_lower   TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	last_login_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS rooms (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT NOT NULL,
	host_user_id BIGINT NOT NULL,
	visibility   TEXT NOT NULL,
	invited      JSONB NOT NULL DEFAULT '[]',
	members      JSONB NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL,
	match_id     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS game_logs (
	id        TEXT PRIMARY KEY,
	match_id  TEXT NOT NULL,
	room_id   BIGINT NOT NULL,
	users     JSONB NOT NULL,
	start_at  TIMESTAMPTZ NOT NULL,
	end_at    TIMESTAMPTZ NOT NULL,
	results   JSONB NOT NULL
);
`

func (p *Postgres) CreateUser(ctx context.Context, name, email, passwordHash string) (*model.User, error) {
	now := p.clock.Now()
	u := &model.User{Name: name, Email: email, PasswordHash: passwordHash, CreatedAt: now}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, email_lower, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, name, email, strings.ToLower(email), passwordHash, now).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.New(apperr.Conflict, "email %s already registered", email)
		}
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	return u, nil
}

func (p *Postgres) LoginUser(ctx context.Context, email, passwordHash string) (*model.User, error) {
	u, err := p.scanUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.PasswordHash != passwordHash {
		return nil, apperr.New(apperr.InvalidCredentials, "password mismatch")
	}
	now := p.clock.Now()
	if _, err := p.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, now, u.ID); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	u.LastLoginAt = now
	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, COALESCE(last_login_at, created_at)
		FROM users WHERE id = $1
	`, id)
	return scanUser(row, apperr.New(apperr.NotFound, "user %d not found", id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return p.scanUserByEmail(ctx, email)
}

func (p *Postgres) scanUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, COALESCE(last_login_at, created_at)
		FROM users WHERE email_lower = $1
	`, strings.ToLower(email))
	return scanUser(row, apperr.New(apperr.NotFound, "user %s not found", email))
}

func scanUser(row *sql.Row, notFound error) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt)
	if err == sql.ErrNoRows {
		return nil, notFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	return u, nil
}

func (p *Postgres) CreateRoom(ctx context.Context, name string, hostUserID int64, vis model.Visibility) (*model.Room, error) {
	now := p.clock.Now()
	members, _ := json.Marshal([]int64{hostUserID})
	r := &model.Room{
		Name: name, HostUserID: hostUserID, Visibility: vis,
		Members: []int64{hostUserID}, Status: model.RoomIdle, CreatedAt: now,
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO rooms (name, host_user_id, visibility, invited, members, status, created_at)
		VALUES ($1, $2, $3, '[]', $4, $5, $6)
		RETURNING id
	`, name, hostUserID, vis, members, model.RoomIdle, now).Scan(&r.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	return r, nil
}

func (p *Postgres) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, host_user_id, visibility, invited, members, status, match_id, created_at
		FROM rooms WHERE id = $1
	`, id)
	return scanRoom(row, apperr.New(apperr.NotFound, "room %d not found", id))
}

func (p *Postgres) ListRooms(ctx context.Context, vis model.Visibility) ([]*model.Room, error) {
	var rows *sql.Rows
	var err error
	if vis == "" {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, name, host_user_id, visibility, invited, members, status, match_id, created_at
			FROM rooms
		`)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, name, host_user_id, visibility, invited, members, status, match_id, created_at
			FROM rooms WHERE visibility = $1
		`, vis)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	defer rows.Close()

	var out []*model.Room
	for rows.Next() {
		r, err := scanRoomRows(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateRoom(ctx context.Context, id int64, patch model.RoomPatch) (*model.Room, error) {
	current, err := p.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Members != nil {
		current.Members = patch.Members
	}
	if patch.Status != "" {
		current.Status = patch.Status
	}
	if patch.Invited != nil {
		current.Invited = patch.Invited
	}
	if patch.MatchID != nil {
		current.MatchID = *patch.MatchID
	}

	members, _ := json.Marshal(current.Members)
	invited, _ := json.Marshal(current.Invited)
	_, err = p.db.ExecContext(ctx, `
		UPDATE rooms SET members = $1, status = $2, invited = $3, match_id = $4 WHERE id = $5
	`, members, current.Status, invited, current.MatchID, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	return current, nil
}

func (p *Postgres) DeleteRoom(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "room %d not found", id)
	}
	return nil
}

func (p *Postgres) CreateGameLog(ctx context.Context, log *model.MatchLog) (*model.MatchLog, error) {
	cp := *log
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	users, _ := json.Marshal(cp.Users)
	results, _ := json.Marshal(cp.Results)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO game_logs (id, match_id, room_id, users, start_at, end_at, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, cp.ID, cp.MatchID, cp.RoomID, users, cp.StartAt, cp.EndAt, results)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	return &cp, nil
}

func (p *Postgres) ListGameLogs(ctx context.Context, userID int64) ([]*model.MatchLog, error) {
	var rows *sql.Rows
	var err error
	if userID == 0 {
		rows, err = p.db.QueryContext(ctx, `SELECT id, match_id, room_id, users, start_at, end_at, results FROM game_logs`)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, match_id, room_id, users, start_at, end_at, results
			FROM game_logs WHERE users @> to_jsonb($1::bigint)
		`, userID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	defer rows.Close()

	var out []*model.MatchLog
	for rows.Next() {
		l := &model.MatchLog{}
		var users, results []byte
		if err := rows.Scan(&l.ID, &l.MatchID, &l.RoomID, &users, &l.StartAt, &l.EndAt, &results); err != nil {
			return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
		}
		json.Unmarshal(users, &l.Users)
		json.Unmarshal(results, &l.Results)
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanRoom(row *sql.Row, notFound error) (*model.Room, error) {
	r := &model.Room{}
	var invited, members []byte
	err := row.Scan(&r.ID, &r.Name, &r.HostUserID, &r.Visibility, &invited, &members, &r.Status, &r.MatchID, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	json.Unmarshal(invited, &r.Invited)
	json.Unmarshal(members, &r.Members)
	return r, nil
}

func scanRoomRows(rows *sql.Rows) (*model.Room, error) {
	r := &model.Room{}
	var invited, members []byte
	if err := rows.Scan(&r.ID, &r.Name, &r.HostUserID, &r.Visibility, &invited, &members, &r.Status, &r.MatchID, &r.CreatedAt); err != nil {
		return nil, err
	}
	json.Unmarshal(invited, &r.Invited)
	json.Unmarshal(members, &r.Members)
	return r, nil
}

// isUniqueViolation matches Postgres's unique_violation SQLSTATE (23505)
// as reported by lib/pq, without importing its internal error type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
