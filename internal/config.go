package internal

import (
	"fmt"
	"time"
)

const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config is the server configuration, read from the environment.
type Config struct {
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=50051"`
	DebugPort         int           `env:"DEBUG_PORT,default=8081"`
	StoreBackend      string        `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,default=./data/badger"`
	RedisAddr         string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisDB           int           `env:"REDIS_DB,default=0"`
	RedisPrefix       string        `env:"REDIS_PREFIX,default=flashfeed:"`
	BufferSize        int           `env:"BUFFER_SIZE,default=64"`
	MaxBodyLength     int           `env:"MAX_BODY_LENGTH,default=4096"`
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=5s"`
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendBadger, BackendRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendBadger, BackendRedis, c.StoreBackend)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE must be positive, got %d", c.BufferSize)
	}
	if c.MaxBodyLength <= 0 {
		return fmt.Errorf("MAX_BODY_LENGTH must be positive, got %d", c.MaxBodyLength)
	}
	return nil
}
