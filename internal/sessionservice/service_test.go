package sessionservice

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tetriduel/internal/launcher"
	"tetriduel/internal/model"
	"tetriduel/internal/pclient"
	"tetriduel/internal/persistence"
	"tetriduel/internal/protocol"
	"tetriduel/internal/store"
	"tetriduel/internal/wire"
)

func startTestSystem(t *testing.T) (*Service, string) {
	t.Helper()

	pln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	persistAddr := pln.Addr().String()
	pln.Close()

	persistSvc := persistence.New(store.NewMemory(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go persistSvc.ListenAndServe(ctx, persistAddr)
	t.Cleanup(cancel)
	time.Sleep(20 * time.Millisecond)

	pc := pclient.New(persistAddr)
	t.Cleanup(func() { pc.Close() })

	l := launcher.New(39000, "/usr/bin/true", "127.0.0.1")
	svc := New(pc, l, NewMemoryPresence())

	sln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	sessAddr := sln.Addr().String()
	go func() {
		for {
			conn, err := sln.Accept()
			if err != nil {
				return
			}
			go svc.handleConn(ctx, wire.NewConn(conn))
		}
	}()
	t.Cleanup(func() { sln.Close() })

	return svc, sessAddr
}

func dialSession(t *testing.T, addr string) *wire.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return wire.NewConn(conn)
}

func roundTrip(t *testing.T, c *wire.Conn, action protocol.Action, data interface{}) protocol.Response {
	t.Helper()
	raw := mustJSON(data)
	require.NoError(t, c.WriteMessage(protocol.Request{Action: action, Data: raw}))
	var resp protocol.Response
	require.NoError(t, c.ReadMessage(&resp, 3*time.Second))
	return resp
}

func registerAndLogin(t *testing.T, c *wire.Conn, email string) int64 {
	t.Helper()
	resp := roundTrip(t, c, protocol.ActionRegister, protocol.RegisterRequest{
		Name: email, Email: email, PasswordHash: "hash",
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	resp = roundTrip(t, c, protocol.ActionLogin, protocol.LoginRequest{
		Email: email, PasswordHash: "hash",
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var u model.User
	require.NoError(t, unmarshal(resp.Data, &u))
	return u.ID
}

func unmarshal(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

func TestRegisterLoginCreateJoinRoom(t *testing.T) {
	_, addr := startTestSystem(t)

	host := dialSession(t, addr)
	defer host.Close()
	hostID := registerAndLogin(t, host, "host@x.com")

	guest := dialSession(t, addr)
	defer guest.Close()
	guestID := registerAndLogin(t, guest, "guest@x.com")
	_ = guestID

	resp := roundTrip(t, host, protocol.ActionCreateRoom, protocol.CreateRoomRequest{
		Name: "R", Visibility: model.VisibilityPublic,
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var room model.Room
	require.NoError(t, unmarshal(resp.Data, &room))
	require.Equal(t, hostID, room.HostUserID)

	resp = roundTrip(t, guest, protocol.ActionJoinRoom, protocol.JoinRoomRequest{RoomID: room.ID})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var joined model.Room
	require.NoError(t, unmarshal(resp.Data, &joined))
	require.Len(t, joined.Members, 2)
}

func TestJoinRoomConcurrencyExactlyOneWins(t *testing.T) {
	_, addr := startTestSystem(t)

	host := dialSession(t, addr)
	defer host.Close()
	registerAndLogin(t, host, "host2@x.com")

	resp := roundTrip(t, host, protocol.ActionCreateRoom, protocol.CreateRoomRequest{
		Name: "R2", Visibility: model.VisibilityPublic,
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var room model.Room
	require.NoError(t, unmarshal(resp.Data, &room))

	guestA := dialSession(t, addr)
	defer guestA.Close()
	registerAndLogin(t, guestA, "guestA@x.com")

	guestB := dialSession(t, addr)
	defer guestB.Close()
	registerAndLogin(t, guestB, "guestB@x.com")

	var wg sync.WaitGroup
	results := make([]protocol.Response, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = roundTrip(t, guestA, protocol.ActionJoinRoom, protocol.JoinRoomRequest{RoomID: room.ID})
	}()
	go func() {
		defer wg.Done()
		results[1] = roundTrip(t, guestB, protocol.ActionJoinRoom, protocol.JoinRoomRequest{RoomID: room.ID})
	}()
	wg.Wait()

	successes, failures := 0, 0
	for _, r := range results {
		switch r.Status {
		case protocol.StatusSuccess:
			successes++
		case protocol.StatusError:
			failures++
			var ed protocol.ErrorData
			require.NoError(t, unmarshal(r.Data, &ed))
			require.Equal(t, "Capacity", ed.Kind)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, failures)
}

func TestPrivateRoomRequiresInvite(t *testing.T) {
	_, addr := startTestSystem(t)

	host := dialSession(t, addr)
	defer host.Close()
	registerAndLogin(t, host, "host3@x.com")

	resp := roundTrip(t, host, protocol.ActionCreateRoom, protocol.CreateRoomRequest{
		Name: "Priv", Visibility: model.VisibilityPrivate,
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var room model.Room
	require.NoError(t, unmarshal(resp.Data, &room))

	outsider := dialSession(t, addr)
	defer outsider.Close()
	registerAndLogin(t, outsider, "outsider@x.com")

	resp = roundTrip(t, outsider, protocol.ActionJoinRoom, protocol.JoinRoomRequest{RoomID: room.ID})
	require.Equal(t, protocol.StatusError, resp.Status)
	var ed protocol.ErrorData
	require.NoError(t, unmarshal(resp.Data, &ed))
	require.Equal(t, "PermissionDenied", ed.Kind)

	bob := dialSession(t, addr)
	defer bob.Close()
	bobID := registerAndLogin(t, bob, "bob3@x.com")

	resp = roundTrip(t, host, protocol.ActionInvite, protocol.InviteRequest{RoomID: room.ID, UserID: bobID})
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	resp = roundTrip(t, bob, protocol.ActionJoinRoom, protocol.JoinRoomRequest{RoomID: room.ID})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
}

func TestLeaveRoomDisbandsWhenHostLeavesIdleRoom(t *testing.T) {
	_, addr := startTestSystem(t)

	host := dialSession(t, addr)
	defer host.Close()
	registerAndLogin(t, host, "host4@x.com")

	resp := roundTrip(t, host, protocol.ActionCreateRoom, protocol.CreateRoomRequest{
		Name: "R4", Visibility: model.VisibilityPublic,
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var room model.Room
	require.NoError(t, unmarshal(resp.Data, &room))

	resp = roundTrip(t, host, protocol.ActionLeaveRoom, nil)
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	guest := dialSession(t, addr)
	defer guest.Close()
	registerAndLogin(t, guest, "guest4@x.com")
	resp = roundTrip(t, guest, protocol.ActionJoinRoom, protocol.JoinRoomRequest{RoomID: room.ID})
	require.Equal(t, protocol.StatusError, resp.Status)
	var ed protocol.ErrorData
	require.NoError(t, unmarshal(resp.Data, &ed))
	require.Equal(t, "NotFound", ed.Kind)
}

func TestStartGameTwoMembersFlow(t *testing.T) {
	_, addr := startTestSystem(t)

	host := dialSession(t, addr)
	defer host.Close()
	registerAndLogin(t, host, "host5@x.com")

	guest := dialSession(t, addr)
	defer guest.Close()
	registerAndLogin(t, guest, "guest5@x.com")

	resp := roundTrip(t, host, protocol.ActionCreateRoom, protocol.CreateRoomRequest{
		Name: "R5", Visibility: model.VisibilityPublic,
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var room model.Room
	require.NoError(t, unmarshal(resp.Data, &room))

	resp = roundTrip(t, guest, protocol.ActionJoinRoom, protocol.JoinRoomRequest{RoomID: room.ID})
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	resp = roundTrip(t, host, protocol.ActionStartGame, protocol.StartGameRequest{RoomID: room.ID})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var started protocol.StartGameResponse
	require.NoError(t, unmarshal(resp.Data, &started))
	require.Equal(t, protocol.RoleP1, started.Role)
	require.GreaterOrEqual(t, started.Port, 39000)
}
