package sessionservice

import (
	"context"

	"tetriduel/internal/apperr"
	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
)

func (s *Service) handleCreateRoom(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}
	if sess.room() != 0 {
		return errResponse(apperr.New(apperr.InvalidState, "already in a room"))
	}

	var d protocol.CreateRoomRequest
	if err := req.Decode(&d); err != nil {
		return errResponse(apperr.Wrap(apperr.MalformedFrame, err))
	}

	s.lockRooms()
	defer s.unlockRooms()

	room, err := s.persist.CreateRoom(ctx, d.Name, uid, d.Visibility)
	if err != nil {
		return errResponse(err)
	}
	sess.setRoom(room.ID)
	return protocol.NewSuccess(room)
}

func (s *Service) handleListRooms(ctx context.Context, sess *Session) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}

	public, err := s.persist.ListRooms(ctx, model.VisibilityPublic)
	if err != nil {
		return errResponse(err)
	}
	private, err := s.persist.ListRooms(ctx, model.VisibilityPrivate)
	if err != nil {
		return errResponse(err)
	}

	visible := public
	for _, r := range private {
		if r.HasMember(uid) || r.IsInvited(uid) {
			visible = append(visible, r)
		}
	}
	return protocol.NewSuccess(protocol.ListRoomsResponse{Rooms: visible})
}

func (s *Service) handleJoinRoom(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}
	if sess.room() != 0 {
		return errResponse(apperr.New(apperr.InvalidState, "already in a room"))
	}

	var d protocol.JoinRoomRequest
	if err := req.Decode(&d); err != nil {
		return errResponse(apperr.Wrap(apperr.MalformedFrame, err))
	}

	s.lockRooms()
	defer s.unlockRooms()

	room, err := s.persist.GetRoom(ctx, d.RoomID)
	if err != nil {
		return errResponse(err)
	}
	if room.Status != model.RoomIdle {
		return errResponse(apperr.New(apperr.InvalidState, "room is not idle"))
	}
	if room.Full() {
		return errResponse(apperr.New(apperr.Capacity, "room is full"))
	}
	if room.Visibility == model.VisibilityPrivate && room.HostUserID != uid && !room.IsInvited(uid) {
		return errResponse(apperr.New(apperr.PermissionDenied, "not invited to this room"))
	}

	members := append(append([]int64{}, room.Members...), uid)
	updated, err := s.persist.UpdateRoom(ctx, room.ID, model.RoomPatch{Members: members})
	if err != nil {
		return errResponse(err)
	}
	sess.setRoom(room.ID)
	return protocol.NewSuccess(updated)
}

func (s *Service) handleLeaveRoom(ctx context.Context, sess *Session) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}
	roomID := sess.room()
	if roomID == 0 {
		return errResponse(apperr.New(apperr.InvalidState, "not in a room"))
	}

	s.lockRooms()
	defer s.unlockRooms()

	if err := s.leaveRoomLocked(ctx, roomID, uid); err != nil {
		return errResponse(err)
	}
	sess.setRoom(0)
	return protocol.NewSuccess(struct{}{})
}

// leaveRoomLocked removes userID from roomID's membership, deleting the
// room if it was idle and userID was its host. Caller must hold roomMu.
func (s *Service) leaveRoomLocked(ctx context.Context, roomID, userID int64) error {
	room, err := s.persist.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == model.RoomPlaying {
		return apperr.New(apperr.InvalidState, "room is playing")
	}

	if room.HostUserID == userID {
		return s.persist.DeleteRoom(ctx, roomID)
	}

	members := make([]int64, 0, len(room.Members))
	for _, m := range room.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	_, err = s.persist.UpdateRoom(ctx, roomID, model.RoomPatch{Members: members})
	return err
}

func (s *Service) handleInvite(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}

	var d protocol.InviteRequest
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

	invited := append(append([]int64{}, room.Invited...), d.UserID)
	updated, err := s.persist.UpdateRoom(ctx, room.ID, model.RoomPatch{Invited: invited})
	if err != nil {
		return errResponse(err)
	}

	if target := s.reg.sessionFor(d.UserID); target != nil {
		_, hostName := sess.user()
		target.enqueue(protocol.Event{
			Event: protocol.EventInvited,
			Data:  mustJSON(protocol.InvitedEvent{RoomID: room.ID, RoomName: room.Name, FromUser: hostName}),
		})
	}

	return protocol.NewSuccess(updated)
}

func (s *Service) handleKick(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}

	var d protocol.KickRequest
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

	members := make([]int64, 0, len(room.Members))
	for _, m := range room.Members {
		if m != d.UserID {
			members = append(members, m)
		}
	}
	updated, err := s.persist.UpdateRoom(ctx, room.ID, model.RoomPatch{Members: members})
	if err != nil {
		return errResponse(err)
	}

	if kicked := s.reg.sessionFor(d.UserID); kicked != nil && kicked.room() == d.RoomID {
		kicked.setRoom(0)
	}
	return protocol.NewSuccess(updated)
}

// onDisconnect runs once per closed client connection: it logs out the
// bound user (leaving their room per the same rules as an explicit
// leave_room) and drops the session from the registry (spec §5's
// cancellation rule).
func (s *Service) onDisconnect(ctx context.Context, sess *Session) {
	uid, _ := sess.user()
	roomID := sess.room()

	if roomID != 0 && uid != 0 {
		s.lockRooms()
		if err := s.leaveRoomLocked(ctx, roomID, uid); err != nil {
			logSessionError("disconnect leave_room", err)
		}
		s.unlockRooms()
	}

	if uid != 0 {
		s.reg.unbindUser(uid)
		if s.presence != nil {
			_ = s.presence.Remove(ctx, uid)
		}
	}
	s.reg.removeConn(sess)
}
