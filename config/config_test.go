package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseEnvWorkerDefaults(t *testing.T) {
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("REDIS_CONNECTION_STRING", "redis://localhost:6379")

	var cfg Worker
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Storage.ProjectsTable != "Projects" || cfg.Storage.JobsQueue != "sync-jobs" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Sync.MaxRetries != 3 || cfg.Sync.BaseDelay != time.Second || cfg.Sync.BatchDelay != 500*time.Millisecond {
		t.Fatalf("unexpected sync defaults %+v", cfg.Sync)
	}
	if cfg.Redis.InflightTTL != 5*time.Minute || cfg.PollInterval != time.Second {
		t.Fatalf("unexpected worker defaults %+v", cfg)
	}
	if cfg.Board.Configured() {
		t.Fatalf("board should not be configured without token")
	}
}

func TestParseEnvRequiresStorage(t *testing.T) {
	t.Setenv("STORAGE_CONNECTION_STRING", "")
	var cfg Init
	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestAuthValidate(t *testing.T) {
	if err := (Auth{TestMode: true}).Validate(); err == nil {
		t.Fatal("expected missing test secret error")
	}
	if err := (Auth{TestMode: true, TestSecret: "s"}).Validate(); err != nil {
		t.Fatalf("test mode: %v", err)
	}
	if err := (Auth{Domain: "tenant.eu.auth0.com"}).Validate(); err == nil {
		t.Fatal("expected missing audience error")
	}
	a := Auth{Domain: "tenant.eu.auth0.com", Audience: "board-sync"}
	if err := a.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if a.JWKSURL() != "https://tenant.eu.auth0.com/.well-known/jwks.json" || a.Issuer() != "https://tenant.eu.auth0.com/" {
		t.Fatalf("unexpected urls %s %s", a.JWKSURL(), a.Issuer())
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	opts, err = RedisOptions("board.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("azure form: %v", err)
	}
	if opts.Addr != "board.redis.cache.windows.net:6380" || opts.Password != "abc=" || opts.TLSConfig == nil {
		t.Fatalf("unexpected azure options %+v", opts)
	}

	if _, err := RedisOptions(""); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}

func TestParseEnvAPIDefaults(t *testing.T) {
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("REDIS_CONNECTION_STRING", "localhost:6379")
	t.Setenv("AUTH0_TEST_MODE", "1")
	t.Setenv("TEST_JWT_SECRET", "secret")

	var cfg API
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != "8080" || cfg.IdempotencyTTL != 24*time.Hour || cfg.Redis.JobsChannel != "sync-jobs" {
		t.Fatalf("unexpected api defaults %+v", cfg)
	}
	if !cfg.Auth.TestMode || cfg.Auth.Validate() != nil {
		t.Fatalf("expected usable test auth, got %+v", cfg.Auth)
	}
}
