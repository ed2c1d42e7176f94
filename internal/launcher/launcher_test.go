package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tetriduel/internal/protocol"
)

func TestLaunchAllocatesDistinctPorts(t *testing.T) {
	l := New(20000, "/usr/bin/true", "127.0.0.1")
	ctx := context.Background()

	ep1, err := l.Launch(ctx, "m1", 1, []PlayerArg{{UserID: 1, Role: protocol.RoleP1}, {UserID: 2, Role: protocol.RoleP2}})
	require.NoError(t, err)

	ep2, err := l.Launch(ctx, "m2", 1, []PlayerArg{{UserID: 3, Role: protocol.RoleP1}, {UserID: 4, Role: protocol.RoleP2}})
	require.NoError(t, err)

	require.NotEqual(t, ep1.Port, ep2.Port)
	require.GreaterOrEqual(t, ep1.Port, 20000)
	require.NotEqual(t, ep1.Seed, ep2.Seed)
}

func TestLaunchReclaimsPortAfterExit(t *testing.T) {
	l := New(21000, "/usr/bin/true", "127.0.0.1")
	ctx := context.Background()

	ep, err := l.Launch(ctx, "m3", 1, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return !l.inUse[ep.Port]
	}, 2*time.Second, 10*time.Millisecond, "expected port to be reclaimed after child exit")
}
