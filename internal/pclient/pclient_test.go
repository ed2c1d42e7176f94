package pclient

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"tetriduel/internal/model"
	"tetriduel/internal/persistence"
	"tetriduel/internal/store"
)

func TestClientCreateAndFetchUser(t *testing.T) {
	addr := startPersistenceAddr(t)
	c := New(addr)
	defer c.Close()

	ctx := context.Background()
	u, err := c.CreateUser(ctx, "nova", "nova@example.com", "hash")
	require.NoError(t, err)
	require.Equal(t, "nova", u.Name)

	fetched, err := c.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, fetched.ID)

	_, err = c.LoginUser(ctx, "nova@example.com", "wrong-hash")
	require.Error(t, err)
}

func TestClientRoomRoundTrip(t *testing.T) {
	addr := startPersistenceAddr(t)
	c := New(addr)
	defer c.Close()

	ctx := context.Background()
	u, err := c.CreateUser(ctx, "gale", "gale@example.com", "hash")
	require.NoError(t, err)

	r, err := c.CreateRoom(ctx, "duel", u.ID, model.VisibilityPublic)
	require.NoError(t, err)
	require.Equal(t, model.RoomIdle, r.Status)

	rooms, err := c.ListRooms(ctx, model.VisibilityPublic)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	matchID := "m-1"
	updated, err := c.UpdateRoom(ctx, r.ID, model.RoomPatch{Status: model.RoomPlaying, MatchID: &matchID})
	require.NoError(t, err)
	require.Equal(t, model.RoomPlaying, updated.Status)
	require.Equal(t, matchID, updated.MatchID)

	require.NoError(t, c.DeleteRoom(ctx, r.ID))
	_, err = c.GetRoom(ctx, r.ID)
	require.Error(t, err)
}

func startPersistenceAddr(t *testing.T) string {
	t.Helper()
	svc := persistence.New(store.NewMemory(nil), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.ListenAndServe(ctx, addr)

	return addr
}
