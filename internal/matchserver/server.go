package matchserver

import (
	"context"
	"log"
	"net"
)

// ListenAndRun binds addr and runs match to completion.
func ListenAndRun(ctx context.Context, addr string, match *Match) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("[match %s] listening on %s", match.MatchID, addr)
	return match.Run(ctx, ln)
}
