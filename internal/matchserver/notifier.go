package matchserver

import (
	"context"
	"net"
	"time"

	"tetriduel/internal/protocol"
	"tetriduel/internal/wire"
)

// ControlNotifier delivers a one-shot MATCH_DONE frame to the session
// service's internal control listener (spec §4.3: "the session service
// receives this on a control channel").
type ControlNotifier struct {
	Addr string
}

func (c *ControlNotifier) NotifyMatchDone(ctx context.Context, msg protocol.MatchDone) error {
	conn, err := net.DialTimeout("tcp", c.Addr, 5*time.Second)
	if err != nil {
		return err
	}
	wc := wire.NewConn(conn)
	defer wc.Close()
	return wc.WriteMessage(msg)
}
