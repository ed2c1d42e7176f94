// Package pclient is a thin client facade over the persistence service,
// mirroring the teacher's thin service-constructor pattern
// (services.NewRoomService(db, redis)) but talking to a network peer
// through internal/wire instead of holding a DB handle directly.
package pclient

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"tetriduel/internal/apperr"
	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
	"tetriduel/internal/wire"
)

const requestTimeout = 10 * time.Second

// Client is a connection to the persistence service. One Client instance
// is safe for concurrent use: requests are serialized through an internal
// mutex since the protocol is strictly request/response over one socket.
type Client struct {
	addr string

	mu   sync.Mutex
	conn *wire.Conn
}

// New returns a Client that lazily dials addr on first use.
func New(addr string) *Client {
	return &Client{addr: addr}
}

func (c *Client) ensureConn() (*wire.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	nc, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceUnavailable, err)
	}
	c.conn = wire.NewConn(nc)
	return c.conn, nil
}

func (c *Client) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// call sends req and decodes the response's Data into out (if non-nil). A
// connection-level failure is retried exactly once against a fresh dial,
// per the "bounded retry" rule for PersistenceUnavailable (spec §7).
func (c *Client) call(ctx context.Context, action protocol.Action, data, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := marshal(data)
	if err != nil {
		return apperr.Wrap(apperr.MalformedFrame, err)
	}
	req := protocol.Request{Action: action, Data: raw}

	resp, err := c.roundTrip(req)
	if err != nil {
		c.dropConn()
		resp, err = c.roundTrip(req)
		if err != nil {
			return apperr.Wrap(apperr.PersistenceUnavailable, err)
		}
	}

	if resp.Status == protocol.StatusError {
		var ed protocol.ErrorData
		_ = unmarshal(resp.Data, &ed)
		return apperr.New(apperr.Kind(ed.Kind), "%s", resp.Message)
	}
	if out != nil {
		return unmarshal(resp.Data, out)
	}
	return nil
}

func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	conn, err := c.ensureConn()
	if err != nil {
		return protocol.Response{}, err
	}
	if err := conn.WriteMessage(req); err != nil {
		return protocol.Response{}, err
	}
	var resp protocol.Response
	if err := conn.ReadMessage(&resp, requestTimeout); err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropConn()
	return nil
}

func (c *Client) CreateUser(ctx context.Context, name, email, passwordHash string) (*model.User, error) {
	var u model.User
	err := c.call(ctx, protocol.ActionCreateUser, struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		PasswordHash string `json:"password_hash"`
	}{name, email, passwordHash}, &u)
	return &u, err
}

func (c *Client) LoginUser(ctx context.Context, email, passwordHash string) (*model.User, error) {
	var u model.User
	err := c.call(ctx, protocol.ActionLoginUser, struct {
		Email        string `json:"email"`
		PasswordHash string `json:"password_hash"`
	}{email, passwordHash}, &u)
	return &u, err
}

func (c *Client) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := c.call(ctx, protocol.ActionGetUser, struct {
		ID int64 `json:"id"`
	}{id}, &u)
	return &u, err
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := c.call(ctx, protocol.ActionGetUserByEmail, struct {
		Email string `json:"email"`
	}{email}, &u)
	return &u, err
}

func (c *Client) CreateRoom(ctx context.Context, name string, hostUserID int64, vis model.Visibility) (*model.Room, error) {
	var r model.Room
	err := c.call(ctx, protocol.ActionCreateRoom, struct {
		Name       string           `json:"name"`
		HostUserID int64            `json:"host_user_id"`
		Visibility model.Visibility `json:"visibility"`
	}{name, hostUserID, vis}, &r)
	return &r, err
}

func (c *Client) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	var r model.Room
	err := c.call(ctx, protocol.ActionGetRoom, struct {
		ID int64 `json:"id"`
	}{id}, &r)
	return &r, err
}

func (c *Client) ListRooms(ctx context.Context, vis model.Visibility) ([]*model.Room, error) {
	var rs []*model.Room
	err := c.call(ctx, protocol.ActionListRooms, struct {
		Visibility model.Visibility `json:"visibility"`
	}{vis}, &rs)
	return rs, err
}

func (c *Client) UpdateRoom(ctx context.Context, id int64, patch model.RoomPatch) (*model.Room, error) {
	var r model.Room
	err := c.call(ctx, protocol.ActionUpdateRoom, struct {
		ID    int64           `json:"id"`
		Patch model.RoomPatch `json:"patch"`
	}{id, patch}, &r)
	return &r, err
}

func (c *Client) DeleteRoom(ctx context.Context, id int64) error {
	return c.call(ctx, protocol.ActionDeleteRoom, struct {
		ID int64 `json:"id"`
	}{id}, nil)
}

func (c *Client) CreateGameLog(ctx context.Context, log *model.MatchLog) (*model.MatchLog, error) {
	var out model.MatchLog
	err := c.call(ctx, protocol.ActionCreateGameLog, log, &out)
	return &out, err
}

func (c *Client) ListGameLogs(ctx context.Context, userID int64) ([]*model.MatchLog, error) {
	var logs []*model.MatchLog
	err := c.call(ctx, protocol.ActionListGameLogs, struct {
		UserID int64 `json:"user_id"`
	}{userID}, &logs)
	return logs, err
}

func marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
