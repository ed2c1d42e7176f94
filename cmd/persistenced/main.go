// Command persistenced runs the persistence service: durable storage for
// users, rooms, and match logs behind a framed TCP socket (spec §4.2).
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

	"tetriduel/internal/archival"
	"tetriduel/internal/config"
	"tetriduel/internal/persistence"
	"tetriduel/internal/store"
)

func main() {
	config.LoadDotenv()

	host := flag.String("host", "0.0.0.0", "interface to bind")
	port := flag.String("port", config.Getenv("PERSISTENCE_PORT", "10001"), "port to bind")
	pgDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN; empty uses an in-memory store")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for the read-through cache; empty disables caching")
	s3Bucket := flag.String("s3-bucket", os.Getenv("S3_BUCKET"), "S3 bucket for match-log archival; empty disables archival")
	s3Region := flag.String("s3-region", config.Getenv("AWS_REGION", "us-east-1"), "S3 region")
	flag.Parse()

	var backing store.Store
	if *pgDSN != "" {
		pg, err := store.OpenPostgres(*pgDSN)
		if err != nil {
			log.Fatalf("persistenced: connect postgres: %v", err)
		}
		backing = pg
		log.Printf("[persistenced] connected to postgres")
	} else {
		backing = store.NewMemory(nil)
		log.Printf("[persistenced] no --postgres-dsn, using in-memory store")
	}

	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("persistenced: connect redis: %v", err)
		}
		backing = store.NewCachedStore(backing, rdb)
		log.Printf("[persistenced] connected to redis cache at %s", *redisAddr)
	}

	var archiver persistence.Archiver
	if *s3Bucket != "" {
		a, err := archival.NewS3Archiver(*s3Region, *s3Bucket, "match-logs/")
		if err != nil {
			log.Fatalf("persistenced: init s3 archiver: %v", err)
		}
		archiver = a
		log.Printf("[persistenced] archiving match logs to s3://%s/match-logs", *s3Bucket)
	} else {
		archiver = archival.NoopArchiver{}
	}

	svc := persistence.New(backing, archiver)

	ctx, cancel := context.WithCancel(context.Background())
	addr := *host + ":" + *port
	errCh := make(chan error, 1)
	go func() { errCh <- svc.ListenAndServe(ctx, addr) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("persistenced: %v", err)
		}
	case <-quit:
		log.Printf("[persistenced] shutting down")
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
		}
	}
	log.Printf("[persistenced] exited")
}
