package main

import (
	"context"
	"flash-feed/auth"
	"flash-feed/contract"
	"flash-feed/infrastructure/grpc/server"
	"flash-feed/infrastructure/grpc/wire"
	redisstore "flash-feed/infrastructure/redis"
	"flash-feed/infrastructure/storage"
	"flash-feed/internal"
	"flash-feed/runtime/workers"
	"flash-feed/services"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	goredis "github.com/go-redis/redis/v8"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every defer (database, redis client) runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB) holds the accounts, and the messages with the badger backend
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Message store
	var (
		store   contract.MessageStore
		history internal.HistoryReader
		health  internal.HealthCheck
	)
	switch config.StoreBackend {
	case internal.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: config.RedisAddr, DB: config.RedisDB})
		defer func() {
			logger.Info("Closing Redis client...")
			_ = client.Close()
		}()
		redisStore := redisstore.NewMessageStore(client, logger, config.RedisPrefix, config.BufferSize)
		if err := redisStore.Ping(ctx); err != nil {
			return exitRuntime, fmt.Errorf("redis unreachable at %s: %w", config.RedisAddr, err)
		}
		store, health = redisStore, redisStore.Ping
	default:
		badgerStore := storage.NewMessageStore(db, logger, config.BufferSize)
		defer func() {
			if err := badgerStore.Close(); err != nil {
				logger.Warn("Closing message store failed", "error", err)
			}
		}()
		store, history = badgerStore, badgerStore
		health = func(context.Context) error {
			if db.IsClosed() {
				return fmt.Errorf("badger is closed")
			}
			return nil
		}
	}
	logger.Info("Message store ready", "backend", config.StoreBackend)

	// 4. gRPC Server Setup
	issuer := auth.NewTokenIssuer(config.AuthSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(storage.NewUserRepository(db), issuer, logger)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			server.AuthInterceptor(issuer),
		),
		grpc.ChainStreamInterceptor(server.StreamAuthInterceptor(issuer)),
	)
	wire.RegisterFeedServiceServer(s, server.NewFeedServer(logger, server.NewAuthServer(authService), store, config.MaxBodyLength))

	// 5. Supervision
	debugAddress := fmt.Sprintf("%s:%d", config.Host, config.DebugPort)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewGrpcServerWorker(logger, s, listener),
		workers.NewHttpServerWorker(logger, debugAddress, internal.NewDebugMux(logger, history, health)),
		workers.NewHeartbeatWorker(logger, config.HeartbeatInterval),
	)

	// 6. Block until a signal is received, workers then stop gracefully
	sup.Run(ctx)
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
