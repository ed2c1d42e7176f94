package wire_test

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tetriduel/internal/wire"
)

func pipe(t *testing.T) (*wire.Conn, *wire.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return wire.NewConn(a), wire.NewConn(b)
}

type helloMsg struct {
	Type string `json:"type"`
	N    int    `json:"n"`
}

func TestRoundTrip(t *testing.T) {
	client, server := pipe(t)

	go func() {
		_ = client.WriteMessage(helloMsg{Type: "HELLO", N: 1})
		_ = client.WriteMessage(helloMsg{Type: "HELLO", N: 2})
	}()

	var first, second helloMsg
	require.NoError(t, server.ReadMessage(&first, 0))
	require.NoError(t, server.ReadMessage(&second, 0))
	require.Equal(t, helloMsg{Type: "HELLO", N: 1}, first)
	require.Equal(t, helloMsg{Type: "HELLO", N: 2}, second)
}

func TestOversizeFrameRejected(t *testing.T) {
	client, server := pipe(t)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], wire.MaxFrameSize+1)
		_, _ = client.Raw().Write(header[:])
	}()

	var msg helloMsg
	err := server.ReadMessage(&msg, time.Second)
	require.Error(t, err)
}

func TestNonObjectBodyRejected(t *testing.T) {
	client, server := pipe(t)

	go func() {
		_ = client.WriteRaw([]byte(`[1,2,3]`))
	}()

	var msg helloMsg
	err := server.ReadMessage(&msg, time.Second)
	require.Error(t, err)
}

func TestReadDeadline(t *testing.T) {
	_, server := pipe(t)
	var msg helloMsg
	start := time.Now()
	err := server.ReadMessage(&msg, 50*time.Millisecond)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}
