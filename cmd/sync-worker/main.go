package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"board-sync/board"
	"board-sync/config"
	"board-sync/reconcile"
	"board-sync/storage"
	"board-sync/syncer"
	"board-sync/worker"
)

func main() {
	var cfg config.Worker
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatal(err)
	}
	config.ApplyLogLevel(cfg.Debug)
	logger := log.StandardLogger()

	store, err := storage.New(cfg.Storage.ConnectionString, cfg.Storage.ProjectsTable, cfg.Storage.JobsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisOpts, err := config.RedisOptions(cfg.Redis.ConnectionString)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	// Spans carry the trace ids logged with sync failures.
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	mb := board.NewRESTClient(cfg.Board.BaseURL, cfg.Board.Token, cfg.Board.BoardID, cfg.Board.Timeout)
	if !cfg.Board.Configured() {
		log.Warn("board not configured; sync jobs will be recorded as pending")
	}
	cards := reconcile.NewReconciler(mb, storage.NewRedisTracker(rc, cfg.Redis.InflightTTL), logger)
	orch := syncer.New(syncer.Deps{
		Store:      store,
		Board:      mb,
		Cards:      cards,
		Rows:       reconcile.NewRowEngine(mb, cards, logger),
		Duplicates: reconcile.NewDuplicateScanner(mb, logger),
		Logger:     logger,
	}, syncer.Config{
		MaxRetries: cfg.Sync.MaxRetries,
		BaseDelay:  cfg.Sync.BaseDelay,
		MaxDelay:   cfg.Sync.MaxDelay,
		BatchDelay: cfg.Sync.BatchDelay,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc := worker.NewProcessor(orch, rc, cfg.Redis.JobsChannel, logger)
	if err := worker.New(store, proc, cfg.PollInterval, logger).Run(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
