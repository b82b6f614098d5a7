package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"board-sync/config"
	"board-sync/storage"
)

func main() {
	var cfg config.Init
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatal(err)
	}
	config.ApplyLogLevel(cfg.Debug)
	log.Info("storage init starting")

	ctx := context.Background()
	if err := storage.CreateTables(ctx, cfg.Storage.ConnectionString, cfg.Storage.ProjectsTable); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := storage.CreateQueues(ctx, cfg.Storage.ConnectionString, cfg.Storage.JobsQueue); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	log.Info("storage init complete")
}
