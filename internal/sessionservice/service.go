// Package sessionservice is the lobby in front of the persistence and
// match-launcher services: it authenticates connections, owns the live
// room/session registry, and orchestrates start_game (spec §4.3).
package sessionservice

import (
	"context"
	"log"
	"net"
	"time"

	"tetriduel/internal/apperr"
	"tetriduel/internal/launcher"
	"tetriduel/internal/pclient"
	"tetriduel/internal/protocol"
	"tetriduel/internal/wire"
)

// readIdleTimeout bounds how long a client connection may sit with no
// request in flight (spec §5's bounded liveness read timeout).
const readIdleTimeout = 5 * time.Minute

// Service is the session service: one TCP listener for clients, one
// internal listener for match-server MATCH_DONE notifications (see
// control.go), backed by a persistence client and a match launcher.
type Service struct {
	persist  *pclient.Client
	launcher *launcher.Launcher
	presence Presence

	reg *registry

	// roomMu serializes every room-mutating action (join_room,
	// leave_room, invite, kick, start_game) end to end, including the
	// round trip to the persistence service. This is what gives
	// join_room its exactly-one-winner guarantee under concurrent
	// callers for the same room (spec §8's concurrency property): the
	// "is it full?" check and the membership write it gates are atomic
	// with respect to every other room action in this process.
	roomMu chan struct{}
}

// New returns a Service ready to accept connections.
func New(persist *pclient.Client, l *launcher.Launcher, presence Presence) *Service {
	roomMu := make(chan struct{}, 1)
	roomMu <- struct{}{}
	return &Service{
		persist:  persist,
		launcher: l,
		presence: presence,
		reg:      newRegistry(),
		roomMu:   roomMu,
	}
}

func (s *Service) lockRooms() {
	<-s.roomMu
}

func (s *Service) unlockRooms() {
	s.roomMu <- struct{}{}
}

// ListenAndServe accepts client connections until ctx is canceled.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Printf("[sessionservice] listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, wire.NewConn(conn))
	}
}

func (s *Service) handleConn(ctx context.Context, wc *wire.Conn) {
	sess := newSession(wc)
	s.reg.addConn(sess)
	go sess.writePump()

	defer s.closeSend(sess)
	defer s.onDisconnect(ctx, sess)

	for {
		var req protocol.Request
		if err := wc.ReadMessage(&req, readIdleTimeout); err != nil {
			return
		}
		resp := s.dispatch(ctx, sess, req)
		sess.enqueue(resp)
	}
}

func (s *Service) closeSend(sess *Session) {
	close(sess.send)
}

func (s *Service) dispatch(ctx context.Context, sess *Session, req protocol.Request) protocol.Response {
	if !protocol.KnownAction(req.Action) {
		return errResponse(apperr.New(apperr.UnknownAction, "unknown action %q", req.Action))
	}

	switch req.Action {
	case protocol.ActionRegister:
		return s.handleRegister(ctx, sess, req)
	case protocol.ActionLogin:
		return s.handleLogin(ctx, sess, req)
	case protocol.ActionLogout:
		return s.handleLogout(ctx, sess)
	case protocol.ActionListOnlineUsers:
		return s.handleListOnlineUsers(ctx, sess)
	case protocol.ActionListRooms:
		return s.handleListRooms(ctx, sess)
	case protocol.ActionCreateRoom:
		return s.handleCreateRoom(ctx, sess, req)
	case protocol.ActionJoinRoom:
		return s.handleJoinRoom(ctx, sess, req)
	case protocol.ActionLeaveRoom:
		return s.handleLeaveRoom(ctx, sess)
	case protocol.ActionInvite:
		return s.handleInvite(ctx, sess, req)
	case protocol.ActionStartGame:
		return s.handleStartGame(ctx, sess, req)
	case protocol.ActionKick:
		return s.handleKick(ctx, sess, req)
	default:
		return errResponse(apperr.New(apperr.UnknownAction, "action %q not handled by session service", req.Action))
	}
}

func errResponse(err error) protocol.Response {
	return protocol.NewError(string(apperr.KindOf(err)), err.Error())
}

// requireAuth returns the caller's user id, or an error response if the
// session is not authenticated.
func (s *Service) requireAuth(sess *Session) (int64, bool, protocol.Response) {
	uid, _ := sess.user()
	if uid == 0 {
		return 0, false, errResponse(apperr.New(apperr.Unauthenticated, "not logged in"))
	}
	return uid, true, protocol.Response{}
}
