package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/app"
	"rollcall/internal/config"
	"rollcall/internal/flusher"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker drains the offline queue on a ticker and whenever the API reports a
// newly queued submission.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	core, err := app.Build(cfg, nil, log.Default())
	if err != nil {
		log.Fatalf("build core failed: %v", err)
	}
	defer core.Close()

	var events <-chan queue.Message
	if cfg.QueueBackend == "redis" {
		rdb := store.NewRedis(cfg.RedisAddr, "")
		defer rdb.Close()
		if !rdb.Healthy(ctx) {
			log.Printf("WARNING: redis at %s not reachable; relying on the ticker until it is", cfg.RedisAddr)
		}
		events, err = queue.NewRedisQueue(rdb.Client, "rollcall:events").Consume(ctx)
		if err != nil {
			log.Fatalf("queue consume init failed: %v", err)
		}
	} else {
		log.Println("memory queue backend: events stay in the API process, flushing on ticks only")
	}

	f := &flusher.Flusher{Sync: core.Engine, Interval: cfg.FlushInterval, Logger: log.Default()}
	log.Printf("worker started, flushing every %s", cfg.FlushInterval)
	if err := f.Run(ctx, events); err != nil && ctx.Err() == nil {
		log.Printf("flusher stopped: %v", err)
	}
	log.Println("worker stopped")
}
