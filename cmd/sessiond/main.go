// Command sessiond runs the session service: lobby, room registry, and
// start-game orchestration in front of the persistence service and match
// launcher (spec §4.3).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tetriduel/internal/config"
	"tetriduel/internal/launcher"
	"tetriduel/internal/pclient"
	"tetriduel/internal/sessionservice"
)

func main() {
	config.LoadDotenv()

	host := flag.String("host", "0.0.0.0", "interface to bind")
	port := flag.String("port", config.Getenv("SESSION_PORT", "10002"), "port to bind for client connections")
	controlPort := flag.String("control-port", config.Getenv("SESSION_CONTROL_PORT", "10003"), "port to bind for match-server MATCH_DONE notifications")
	persistenceAddr := flag.String("persistence-addr", config.Getenv("PERSISTENCE_ADDR", "127.0.0.1:10001"), "persistence service address")
	matchBinary := flag.String("match-binary", config.Getenv("MATCH_BINARY", "./matchd"), "path to the matchd binary the launcher spawns")
	matchBasePort := flag.Int("match-base-port", 10100, "first port the launcher allocates for match servers")
	advertiseHost := flag.String("advertise-host", config.Getenv("ADVERTISE_HOST", "127.0.0.1"), "host clients use to reach a launched match")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for online presence; empty uses an in-process set")
	flag.Parse()

	pc := pclient.New(*persistenceAddr)
	defer pc.Close()

	l := launcher.New(*matchBasePort, *matchBinary, *advertiseHost)

	var presence sessionservice.Presence
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("sessiond: connect redis: %v", err)
		}
		presence = sessionservice.NewRedisPresence(rdb)
		log.Printf("[sessiond] tracking presence in redis at %s", *redisAddr)
	} else {
		presence = sessionservice.NewMemoryPresence()
		log.Printf("[sessiond] no --redis-addr, tracking presence in-process")
	}

	svc := sessionservice.New(pc, l, presence)

	ctx, cancel := context.WithCancel(context.Background())

	clientAddr := *host + ":" + *port
	controlAddr := *host + ":" + *controlPort

	errCh := make(chan error, 2)
	go func() { errCh <- svc.ListenAndServe(ctx, clientAddr) }()
	go func() { errCh <- svc.ListenControl(ctx, controlAddr) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("sessiond: %v", err)
		}
	case <-quit:
		log.Printf("[sessiond] shutting down")
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
		}
	}
	log.Printf("[sessiond] exited")
}
