// Package matchserver runs one authoritative match: two player
// connections, the 10Hz gravity/snapshot tick loop, and result
// finalization. One process (spawned by internal/launcher) runs exactly
// one Match for its lifetime.
package matchserver

import (
	"context"

	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
)

// matchState is the match server's lifecycle state machine (spec §4.5).
type matchState int

const (
	stateAwaitingPlayers matchState = iota
	stateRunning
	stateTerminating
	stateDone
)

func (s matchState) String() string {
	switch s {
	case stateAwaitingPlayers:
		return "AwaitingPlayers"
	case stateRunning:
		return "Running"
	case stateTerminating:
		return "Terminating"
	case stateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// AuthorizedPlayer is one of the two (roomId, userId, role) triples the
// launcher authorizes for this match; HELLO frames are checked against
// this list (spec §4.5).
type AuthorizedPlayer struct {
	RoomID int64
	UserID int64
	Role   protocol.Role
}

// Notifier delivers the internal MATCH_DONE control frame to the session
// service so the room can leave "playing" (spec §9 open question,
// resolved in SPEC_FULL.md §4.5: both this notification and a direct
// persistence write happen).
type Notifier interface {
	NotifyMatchDone(ctx context.Context, msg protocol.MatchDone) error
}

// LogWriter persists the finished match's MatchLog. Implemented by
// internal/pclient.Client in production; a fake in tests.
type LogWriter interface {
	CreateGameLog(ctx context.Context, log *model.MatchLog) (*model.MatchLog, error)
}
