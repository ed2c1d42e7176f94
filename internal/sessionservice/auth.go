package sessionservice

import (
	"context"

	"tetriduel/internal/apperr"
	"tetriduel/internal/protocol"
)

func (s *Service) handleRegister(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	if sess.isAuthenticated() {
		return errResponse(apperr.New(apperr.InvalidState, "already logged in"))
	}
	var d protocol.RegisterRequest
	if err := req.Decode(&d); err != nil {
		return errResponse(apperr.Wrap(apperr.MalformedFrame, err))
	}
	u, err := s.persist.CreateUser(ctx, d.Name, d.Email, d.PasswordHash)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(u)
}

func (s *Service) handleLogin(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	if sess.isAuthenticated() {
		return errResponse(apperr.New(apperr.InvalidState, "already logged in"))
	}
	var d protocol.LoginRequest
	if err := req.Decode(&d); err != nil {
		return errResponse(apperr.Wrap(apperr.MalformedFrame, err))
	}
	u, err := s.persist.LoginUser(ctx, d.Email, d.PasswordHash)
	if err != nil {
		return errResponse(err)
	}

	if prev := s.reg.bindUser(sess, u.ID, u.Name); prev != nil {
		// A user id has at most one active session; evict whatever
		// session was previously bound so the invariant holds.
		prev.setUser(0, "")
		prev.setRoom(0)
	}
	if s.presence != nil {
		_ = s.presence.Add(ctx, u.ID, u.Name)
	}
	return protocol.NewSuccess(u)
}

func (s *Service) handleLogout(ctx context.Context, sess *Session) protocol.Response {
	uid, ok, errResp := s.requireAuth(sess)
	if !ok {
		return errResp
	}

	roomID := sess.room()
	if roomID != 0 {
		s.lockRooms()
		if err := s.leaveRoomLocked(ctx, roomID, uid); err != nil {
			logSessionError("logout leave_room", err)
		}
		s.unlockRooms()
		sess.setRoom(0)
	}

	s.reg.unbindUser(uid)
	sess.setUser(0, "")
	if s.presence != nil {
		_ = s.presence.Remove(ctx, uid)
	}
	return protocol.NewSuccess(struct{}{})
}

func (s *Service) handleListOnlineUsers(ctx context.Context, sess *Session) protocol.Response {
	if _, ok, errResp := s.requireAuth(sess); !ok {
		return errResp
	}

	if s.presence != nil {
		refs, err := s.presence.List(ctx)
		if err == nil {
			return protocol.NewSuccess(protocol.OnlineUsersResponse{Users: refs})
		}
		logSessionError("list_online_users presence", err)
	}

	snapshot := s.reg.onlineSnapshot()
	users := make([]protocol.UserRef, 0, len(snapshot))
	for uid, name := range snapshot {
		users = append(users, protocol.UserRef{ID: uid, Name: name})
	}
	return protocol.NewSuccess(protocol.OnlineUsersResponse{Users: users})
}
