package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/api"
	"board-sync/board"
	"board-sync/config"
	"board-sync/storage"
	"board-sync/syncer"
)

func main() {
	var cfg config.API
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatal(err)
	}
	config.ApplyLogLevel(cfg.Debug)
	if err := cfg.Auth.Validate(); err != nil {
		log.Fatal(err)
	}

	store, err := storage.New(cfg.Storage.ConnectionString, cfg.Storage.ProjectsTable, cfg.Storage.JobsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var auth *api.Auth
	if cfg.Auth.TestMode {
		auth = api.NewTestAuth([]byte(cfg.Auth.TestSecret))
	} else {
		jwks, err := keyfunc.Get(cfg.Auth.JWKSURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.Auth.Audience, cfg.Auth.Issuer())
	}

	redisOpts, err := config.RedisOptions(cfg.Redis.ConnectionString)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	logger := log.StandardLogger()
	results := api.NewResultBroker(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go results.Run(ctx, rc, cfg.Redis.JobsChannel)

	mb := board.NewRESTClient(cfg.Board.BaseURL, cfg.Board.Token, cfg.Board.BoardID, cfg.Board.Timeout)
	// The api only reads health; reconciliation runs in the worker.
	health := syncer.New(syncer.Deps{Store: store, Board: mb, Logger: logger}, syncer.DefaultConfig())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
	}))
	api.Register(e, api.Deps{
		Queue:   store,
		Health:  health,
		Auth:    auth,
		Deduper: api.NewRedisDeduper(rc, cfg.IdempotencyTTL),
		Results: results,
		Logger:  logger,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()
	if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Fatal(err)
	}
}
