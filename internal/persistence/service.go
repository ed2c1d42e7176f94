// Package persistence implements the single-socket request/response
// persistence service (spec §4.2): one worker goroutine per inbound
// connection, dispatching {action,data} frames onto a Store.
package persistence

import (
	"context"
	"log"
	"net"
	"time"

	"tetriduel/internal/apperr"
	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
	"tetriduel/internal/store"
	"tetriduel/internal/wire"
)

// readIdleTimeout bounds how long a persistence connection may sit with no
// request in flight before the worker gives up on it (spec §5: "a liveness
// read timeout elsewhere is implementation-defined but must be bounded").
const readIdleTimeout = 5 * time.Minute

// Archiver is the optional best-effort archival hook invoked after a game
// log is durably written (SPEC_FULL.md §4.2). A nil Archiver disables
// archival entirely.
type Archiver interface {
	ArchiveGameLog(ctx context.Context, log *model.MatchLog) error
}

// Service is the persistence service.
type Service struct {
	store    store.Store
	archiver Archiver
}

// New builds a persistence Service over st, optionally archiving finalized
// game logs via arch.
func New(st store.Store, arch Archiver) *Service {
	return &Service{store: st, archiver: arch}
}

// ListenAndServe accepts connections on addr until the listener errs or
// ctx is done.
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

	log.Printf("[persistence] listening on %s", addr)
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

func (s *Service) handleConn(ctx context.Context, c *wire.Conn) {
	defer c.Close()
	for {
		var req protocol.Request
		if err := c.ReadMessage(&req, readIdleTimeout); err != nil {
			return
		}
		resp := s.dispatch(ctx, req)
		if err := c.WriteMessage(resp); err != nil {
			return
		}
	}
}

func (s *Service) dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	if !protocol.KnownAction(req.Action) {
		return protocol.NewError(string(apperr.UnknownAction), "unknown action: "+string(req.Action))
	}

	switch req.Action {
	case protocol.ActionCreateUser:
		return s.createUser(ctx, req)
	case protocol.ActionLoginUser:
		return s.loginUser(ctx, req)
	case protocol.ActionGetUser:
		return s.getUser(ctx, req)
	case protocol.ActionGetUserByEmail:
		return s.getUserByEmail(ctx, req)
	case protocol.ActionCreateRoom:
		return s.createRoom(ctx, req)
	case protocol.ActionGetRoom:
		return s.getRoom(ctx, req)
	case protocol.ActionListRooms:
		return s.listRooms(ctx, req)
	case protocol.ActionUpdateRoom:
		return s.updateRoom(ctx, req)
	case protocol.ActionDeleteRoom:
		return s.deleteRoom(ctx, req)
	case protocol.ActionCreateGameLog:
		return s.createGameLog(ctx, req)
	case protocol.ActionListGameLogs:
		return s.listGameLogs(ctx, req)
	default:
		return protocol.NewError(string(apperr.UnknownAction), "unhandled action: "+string(req.Action))
	}
}

func errResponse(err error) protocol.Response {
	return protocol.NewError(string(apperr.KindOf(err)), err.Error())
}

type createUserData struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

func (s *Service) createUser(ctx context.Context, req protocol.Request) protocol.Response {
	var d createUserData
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	u, err := s.store.CreateUser(ctx, d.Name, d.Email, d.PasswordHash)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(u)
}

type loginUserData struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

func (s *Service) loginUser(ctx context.Context, req protocol.Request) protocol.Response {
	var d loginUserData
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	u, err := s.store.LoginUser(ctx, d.Email, d.PasswordHash)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(u)
}

func (s *Service) getUser(ctx context.Context, req protocol.Request) protocol.Response {
	var d struct {
		ID int64 `json:"id"`
	}
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	u, err := s.store.GetUser(ctx, d.ID)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(u)
}

func (s *Service) getUserByEmail(ctx context.Context, req protocol.Request) protocol.Response {
	var d struct {
		Email string `json:"email"`
	}
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	u, err := s.store.GetUserByEmail(ctx, d.Email)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(u)
}

type createRoomData struct {
	Name       string           `json:"name"`
	HostUserID int64            `json:"host_user_id"`
	Visibility model.Visibility `json:"visibility"`
}

func (s *Service) createRoom(ctx context.Context, req protocol.Request) protocol.Response {
	var d createRoomData
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	r, err := s.store.CreateRoom(ctx, d.Name, d.HostUserID, d.Visibility)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(r)
}

func (s *Service) getRoom(ctx context.Context, req protocol.Request) protocol.Response {
	var d struct {
		ID int64 `json:"id"`
	}
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	r, err := s.store.GetRoom(ctx, d.ID)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(r)
}

func (s *Service) listRooms(ctx context.Context, req protocol.Request) protocol.Response {
	var d struct {
		Visibility model.Visibility `json:"visibility"`
	}
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	rs, err := s.store.ListRooms(ctx, d.Visibility)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(rs)
}

type updateRoomData struct {
	ID    int64           `json:"id"`
	Patch model.RoomPatch `json:"patch"`
}

func (s *Service) updateRoom(ctx context.Context, req protocol.Request) protocol.Response {
	var d updateRoomData
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	r, err := s.store.UpdateRoom(ctx, d.ID, d.Patch)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(r)
}

func (s *Service) deleteRoom(ctx context.Context, req protocol.Request) protocol.Response {
	var d struct {
		ID int64 `json:"id"`
	}
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	if err := s.store.DeleteRoom(ctx, d.ID); err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(struct{}{})
}

func (s *Service) createGameLog(ctx context.Context, req protocol.Request) protocol.Response {
	var gameLog model.MatchLog
	if err := req.Decode(&gameLog); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	created, err := s.store.CreateGameLog(ctx, &gameLog)
	if err != nil {
		return errResponse(err)
	}
	if s.archiver != nil {
		go func() {
			archiveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.archiver.ArchiveGameLog(archiveCtx, created); err != nil {
				// best-effort: the row in Postgres remains the source of truth
				log.Printf("[persistence] archival failed for game log %s: %v", created.ID, err)
			}
		}()
	}
	return protocol.NewSuccess(created)
}

func (s *Service) listGameLogs(ctx context.Context, req protocol.Request) protocol.Response {
	var d struct {
		UserID int64 `json:"user_id"`
	}
	if err := req.Decode(&d); err != nil {
		return protocol.NewError(string(apperr.MalformedFrame), err.Error())
	}
	logs, err := s.store.ListGameLogs(ctx, d.UserID)
	if err != nil {
		return errResponse(err)
	}
	return protocol.NewSuccess(logs)
}
