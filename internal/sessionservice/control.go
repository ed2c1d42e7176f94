package sessionservice

import (
	"context"
	"log"
	"net"
	"time"

	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
	"tetriduel/internal/wire"
)

// controlReadTimeout bounds how long the control listener waits for a
// MATCH_DONE frame on one accepted connection before giving up on it.
const controlReadTimeout = 10 * time.Second

// ListenControl accepts one-shot connections from match-server processes
// and applies each MATCH_DONE frame by flipping the named room back to
// idle (spec §4.3's room state machine, "playing -> idle on match-end
// notification from match server").
func (s *Service) ListenControl(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

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
		go s.handleControlConn(ctx, conn)
	}
}

func (s *Service) handleControlConn(ctx context.Context, conn net.Conn) {
	wc := wire.NewConn(conn)
	defer wc.Close()

	var msg protocol.MatchDone
	if err := wc.ReadMessage(&msg, controlReadTimeout); err != nil {
		return
	}
	if msg.Type != protocol.MsgMatchDone {
		return
	}
	s.onMatchDone(ctx, msg)
}

func (s *Service) onMatchDone(ctx context.Context, msg protocol.MatchDone) {
	_, err := s.persist.UpdateRoom(ctx, msg.RoomID, model.RoomPatch{
		Status:  model.RoomIdle,
		MatchID: strPtr(""),
	})
	if err != nil {
		log.Printf("[sessionservice] MATCH_DONE for room %d: update failed: %v", msg.RoomID, err)
		return
	}
	log.Printf("[sessionservice] room %d returned to idle after match %s", msg.RoomID, msg.MatchID)
}

func strPtr(s string) *string { return &s }
