// Package config loads process configuration from environment variables.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Storage locates the projects table and the jobs queue.
type Storage struct {
	ConnectionString string `env:"STORAGE_CONNECTION_STRING,required,notEmpty"`
	ProjectsTable    string `env:"PROJECTS_TABLE" envDefault:"Projects"`
	JobsQueue        string `env:"SYNC_JOBS_QUEUE" envDefault:"sync-jobs"`
}

type Redis struct {
	ConnectionString string        `env:"REDIS_CONNECTION_STRING,required,notEmpty"`
	InflightTTL      time.Duration `env:"SYNC_INFLIGHT_TTL" envDefault:"5m"`
	JobsChannel      string        `env:"SYNC_JOBS_CHANNEL" envDefault:"sync-jobs"`
}

// Board configures the board REST client. An empty token or board id leaves
// the board unavailable.
type Board struct {
	BaseURL string        `env:"MIRO_API_URL" envDefault:"https://api.miro.com/v2"`
	Token   string        `env:"MIRO_ACCESS_TOKEN"`
	BoardID string        `env:"MIRO_BOARD_ID"`
	Timeout time.Duration `env:"MIRO_TIMEOUT" envDefault:"15s"`
}

type Sync struct {
	MaxRetries int           `env:"SYNC_MAX_RETRIES" envDefault:"3"`
	BaseDelay  time.Duration `env:"SYNC_BASE_DELAY" envDefault:"1s"`
	MaxDelay   time.Duration `env:"SYNC_MAX_DELAY" envDefault:"0s"`
	BatchDelay time.Duration `env:"SYNC_BATCH_DELAY" envDefault:"500ms"`
}

type Auth struct {
	Domain     string `env:"AUTH0_DOMAIN"`
	Audience   string `env:"AUTH0_AUDIENCE"`
	TestMode   bool   `env:"AUTH0_TEST_MODE"`
	TestSecret string `env:"TEST_JWT_SECRET"`
}

// API is the sync-api configuration.
type API struct {
	Debug          bool          `env:"DEBUG"`
	Port           string        `env:"FUNCTIONS_CUSTOMHANDLER_PORT" envDefault:"8080"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	Storage        Storage
	Redis          Redis
	Board          Board
	Auth           Auth
}

// Worker is the sync-worker configuration.
type Worker struct {
	Debug        bool          `env:"DEBUG"`
	PollInterval time.Duration `env:"SYNC_POLL_INTERVAL" envDefault:"1s"`
	Storage      Storage
	Redis        Redis
	Board        Board
	Sync         Sync
}

// Init is the storage-init configuration.
type Init struct {
	Debug   bool `env:"DEBUG"`
	Storage Storage
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks that the bearer auth settings are usable.
func (a Auth) Validate() error {
	if a.TestMode {
		if a.TestSecret == "" {
			return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		return nil
	}
	if a.Domain == "" || a.Audience == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// JWKSURL is the key set endpoint of the Auth0 tenant.
func (a Auth) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", a.Domain)
}

func (a Auth) Issuer() string {
	return "https://" + a.Domain + "/"
}

// Configured reports whether a board can be talked to.
func (b Board) Configured() bool {
	return b.Token != "" && b.BoardID != ""
}

// RedisOptions accepts either a redis:// URL or the Azure Cache form
// "host:port,password=...,ssl=True".
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("missing redis config")
	}
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

// ApplyLogLevel switches the standard logger to debug when asked.
func ApplyLogLevel(debug bool) {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
