// Command matchd runs exactly one authoritative match: two player
// connections, the 10Hz tick loop, and result finalization (spec §4.5).
// One instance is spawned per match by internal/launcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"tetriduel/internal/config"
	"tetriduel/internal/matchserver"
	"tetriduel/internal/pclient"
	"tetriduel/internal/protocol"
)

// playerFlags collects repeated --player user_id:role arguments.
type playerFlags []matchserver.AuthorizedPlayer

func (p *playerFlags) String() string {
	parts := make([]string, len(*p))
	for i, pl := range *p {
		parts[i] = fmt.Sprintf("%d:%s", pl.UserID, pl.Role)
	}
	return strings.Join(parts, ",")
}

func (p *playerFlags) Set(value string) error {
	userIDStr, role, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("--player must be user_id:role, got %q", value)
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("--player user id: %w", err)
	}
	*p = append(*p, matchserver.AuthorizedPlayer{UserID: userID, Role: protocol.Role(role)})
	return nil
}

func main() {
	config.LoadDotenv()

	host := flag.String("host", "0.0.0.0", "interface to bind")
	port := flag.Int("port", 0, "port to bind (allocated by the launcher)")
	matchID := flag.String("match-id", "", "match id assigned by the launcher")
	roomID := flag.Int64("room-id", 0, "room id this match was started from")
	seed := flag.Int64("seed", 0, "64-bit bag seed shared by both players")
	persistenceAddr := flag.String("persistence-addr", config.Getenv("PERSISTENCE_ADDR", "127.0.0.1:10001"), "persistence service address")
	controlAddr := flag.String("control-addr", config.Getenv("SESSION_CONTROL_ADDR", "127.0.0.1:10003"), "session service's MATCH_DONE control address")
	var players playerFlags
	flag.Var(&players, "player", "user_id:role pair, given twice (once per player)")
	flag.Parse()

	if *matchID == "" || len(players) != 2 {
		log.Fatalf("matchd: --match-id and exactly two --player flags are required")
	}

	authorized := make([]matchserver.AuthorizedPlayer, len(players))
	for i, p := range players {
		p.RoomID = *roomID
		authorized[i] = p
	}

	logWriter := pclient.New(*persistenceAddr)
	defer logWriter.Close()
	notifier := &matchserver.ControlNotifier{Addr: *controlAddr}

	match := matchserver.NewMatch(*matchID, *roomID, *seed, authorized, notifier, logWriter)

	addr := *host + ":" + strconv.Itoa(*port)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Printf("[matchd] received shutdown signal")
		cancel()
	}()

	log.Printf("[matchd] match %s seed=%d", *matchID, *seed)
	if err := matchserver.ListenAndRun(ctx, addr, match); err != nil && ctx.Err() == nil {
		log.Fatalf("matchd: %v", err)
	}
	log.Printf("[matchd] match %s done", *matchID)
}
