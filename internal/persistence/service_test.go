package persistence

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
	"tetriduel/internal/store"
	"tetriduel/internal/wire"
)

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func unmarshal(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}

func startTestService(t *testing.T) *wire.Conn {
	t.Helper()
	svc := New(store.NewMemory(nil), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go svc.handleConn(ctx, wire.NewConn(conn))
		}
	}()
	t.Cleanup(func() { ln.Close() })

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	return wire.NewConn(clientConn)
}

func roundTrip(t *testing.T, c *wire.Conn, req protocol.Request) protocol.Response {
	t.Helper()
	require.NoError(t, c.WriteMessage(req))
	var resp protocol.Response
	require.NoError(t, c.ReadMessage(&resp, 2*time.Second))
	return resp
}

func TestCreateAndLoginUser(t *testing.T) {
	c := startTestService(t)

	createReq := protocol.Request{
		Action: protocol.ActionCreateUser,
		Data:   mustJSON(t, createUserData{Name: "ash", Email: "ash@example.com", PasswordHash: "hash1"}),
	}
	resp := roundTrip(t, c, createReq)
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	var u model.User
	require.NoError(t, unmarshal(resp.Data, &u))
	require.Equal(t, "ash", u.Name)

	loginReq := protocol.Request{
		Action: protocol.ActionLoginUser,
		Data:   mustJSON(t, loginUserData{Email: "ash@example.com", PasswordHash: "hash1"}),
	}
	resp = roundTrip(t, c, loginReq)
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	badLoginReq := protocol.Request{
		Action: protocol.ActionLoginUser,
		Data:   mustJSON(t, loginUserData{Email: "ash@example.com", PasswordHash: "wrong"}),
	}
	resp = roundTrip(t, c, badLoginReq)
	require.Equal(t, protocol.StatusError, resp.Status)
}

func TestUnknownActionRejected(t *testing.T) {
	c := startTestService(t)
	resp := roundTrip(t, c, protocol.Request{Action: "do_something_else"})
	require.Equal(t, protocol.StatusError, resp.Status)
}

func TestCreateUserEmailCaseInsensitiveConflict(t *testing.T) {
	c := startTestService(t)

	first := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionCreateUser,
		Data:   mustJSON(t, createUserData{Name: "ash", Email: "Ash@Example.com", PasswordHash: "hash1"}),
	})
	require.Equal(t, protocol.StatusSuccess, first.Status)

	second := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionCreateUser,
		Data:   mustJSON(t, createUserData{Name: "ash2", Email: "ash@example.com", PasswordHash: "hash2"}),
	})
	require.Equal(t, protocol.StatusError, second.Status)
	var ed protocol.ErrorData
	require.NoError(t, unmarshal(second.Data, &ed))
	require.Equal(t, "Conflict", ed.Kind)
}

func TestUpdateRoomUnknownIDNotFound(t *testing.T) {
	c := startTestService(t)

	resp := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionUpdateRoom,
		Data:   mustJSON(t, updateRoomData{ID: 999999, Patch: model.RoomPatch{Status: model.RoomPlaying}}),
	})
	require.Equal(t, protocol.StatusError, resp.Status)
	var ed protocol.ErrorData
	require.NoError(t, unmarshal(resp.Data, &ed))
	require.Equal(t, "NotFound", ed.Kind)
}

func TestRoomLifecycle(t *testing.T) {
	c := startTestService(t)

	createUserResp := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionCreateUser,
		Data:   mustJSON(t, createUserData{Name: "host", Email: "h@example.com", PasswordHash: "h"}),
	})
	var host model.User
	require.NoError(t, unmarshal(createUserResp.Data, &host))

	roomResp := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionCreateRoom,
		Data:   mustJSON(t, createRoomData{Name: "room1", HostUserID: host.ID, Visibility: model.VisibilityPublic}),
	})
	require.Equal(t, protocol.StatusSuccess, roomResp.Status)
	var room model.Room
	require.NoError(t, unmarshal(roomResp.Data, &room))
	require.Equal(t, model.RoomIdle, room.Status)

	updateResp := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionUpdateRoom,
		Data:   mustJSON(t, updateRoomData{ID: room.ID, Patch: model.RoomPatch{Status: model.RoomPlaying}}),
	})
	require.Equal(t, protocol.StatusSuccess, updateResp.Status)

	deleteResp := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionDeleteRoom,
		Data:   mustJSON(t, struct {
			ID int64 `json:"id"`
		}{ID: room.ID}),
	})
	require.Equal(t, protocol.StatusSuccess, deleteResp.Status)

	getResp := roundTrip(t, c, protocol.Request{
		Action: protocol.ActionGetRoom,
		Data: mustJSON(t, struct {
			ID int64 `json:"id"`
		}{ID: room.ID}),
	})
	require.Equal(t, protocol.StatusError, getResp.Status)
}
