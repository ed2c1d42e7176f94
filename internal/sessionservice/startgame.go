package sessionservice

import (
	"context"

	"github.com/google/uuid"

	"tetriduel/internal/apperr"
	"tetriduel/internal/launcher"
	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
)

// handleStartGame implements spec §4.3's start-game flow: allocate an
// endpoint and seed from the launcher, flip the room to playing, reply to
// the host, and push an unsolicited match_ready event to the guest. The
// room is flipped to playing only by the last step that can fail, so any
// failure leaves it idle. The taxonomy has no dedicated StartFailed kind:
// a launch failure is reported as LauncherError, and a failed room update
// as the error kind the persistence client returned.
func (s *Service) handleStartGame(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}

	var d protocol.StartGameRequest
	if err := req.Decode(&d); err != nil {
		return errResponse(apperr.Wrap(apperr.MalformedFrame, err))
	}

	s.lockRooms()
	defer s.unlockRooms()

	room, err := s.persist.GetRoom(ctx, d.RoomID)
	if err != nil {
		return errResponse(err)
	}
	if room.HostUserID != uid {
		return errResponse(apperr.New(apperr.PermissionDenied, "not the host"))
	}
	if room.Status != model.RoomIdle {
		return errResponse(apperr.New(apperr.InvalidState, "room is not idle"))
	}
	if len(room.Members) != 2 {
		return errResponse(apperr.New(apperr.InvalidState, "room does not have exactly two members"))
	}
	hostID := room.Members[0]
	guestID := room.Members[1]

	matchID := uuid.NewString()
	players := []launcher.PlayerArg{
		{UserID: hostID, Role: protocol.RoleP1},
		{UserID: guestID, Role: protocol.RoleP2},
	}
	ep, err := s.launcher.Launch(ctx, matchID, room.ID, players)
	if err != nil {
		return errResponse(apperr.Wrap(apperr.LauncherError, err))
	}

	updated, err := s.persist.UpdateRoom(ctx, room.ID, model.RoomPatch{
		Status:  model.RoomPlaying,
		MatchID: &matchID,
	})
	if err != nil {
		// The match process is already running; the room could not be
		// marked playing. This is surfaced as-is rather than attempting
		// to unwind the spawned process, which the launcher has no
		// handle to cancel by match id alone.
		return errResponse(err)
	}
	_ = updated

	if guest := s.reg.sessionFor(guestID); guest != nil {
		guest.enqueue(protocol.Event{
			Event: protocol.EventMatchReady,
			Data: mustJSON(protocol.MatchReadyEvent{
				Host: ep.Host,
				Port: ep.Port,
				Role: protocol.RoleP2,
			}),
		})
	}

	return protocol.NewSuccess(protocol.StartGameResponse{
		Host:    ep.Host,
		Port:    ep.Port,
		MatchID: matchID,
		Role:    protocol.RoleP1,
	})
}
