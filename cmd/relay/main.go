package main

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
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
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns the process lifecycle, so that deferred
// cleanups (database, redis) run before the exit code is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(storage.Options(config.BadgerFilepath, log))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation
	data, err := moderation.NewCensoredLoader(moderation.Censored).LoadAll(moderation.CensoredDir)
	if err != nil {
		return exitConfig, fmt.Errorf("censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, charReplacement, log)
	if err != nil {
		return exitConfig, fmt.Errorf("moderator: %w", err)
	}
	log.Info("Moderation ready", "words", len(data.Words), "languages", data.Languages)

	// 4. Core components
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := observability.NewMonitoringManager(log, config.MetricInterval)
	store := storage.NewStore(db, log)
	registry := runtime.NewRegistry()
	events := make(chan event.DomainEvent, config.EventBufferSize)
	router := runtime.NewRouter(store, registry, &moderator, events, monitor, config.MaxContentLength, log)
	authenticator := auth.NewAuthenticator([]byte(config.JWTSecret), config.JWTIssuer)
	paging := domain.Paging{DefaultLimit: config.DefaultPageLimit, MaxLimit: config.MaxPageLimit}

	// 5. Background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewNotificationWorker(router, events, log),
		workers.NewValueLogGCWorker(db, config.GCInterval, log),
		workers.NewGaugeWorker(log, registry, []workers.NamedChannel{{Name: "events", Channel: events}}, monitor, config.MetricInterval),
		workers.NewProcessStatsWorker(log, monitor, config.MetricInterval),
		monitor,
	)
	if config.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		sup.Add(workers.NewRedisRelayWorker(redisClient, config.RedisChannel, events, log))
	}
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 6. HTTP server: websocket + REST
	mux := http.NewServeMux()
	wsHandler := ws.NewHandler(ctx, authenticator, registry, router, monitor, ws.Config{
		AllowedOrigins: config.Origins(),
		MaxFrameBytes:  config.MaxFrameBytes,
		InboundRate:    config.InboundRate,
		InboundBurst:   config.InboundBurst,
		Connection: sink.Config{
			BufferSize:   config.ConnectionBufferSize,
			WriteTimeout: config.WriteTimeout,
			PongTimeout:  config.PongTimeout,
		},
	}, log)
	mux.Handle(config.WSPath, wsHandler)
	rest.NewHandler(
		services.NewChatService(store, paging, log),
		services.NewNotificationService(store, paging),
		monitor, log,
	).Register(mux, authenticator)

	server := &http.Server{
		Addr:              config.Address(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay", "address", server.Addr, "ws_path", config.WSPath, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		log.Error("Server failed", "error", err)
		code = exitRuntime
		stop()
	}

	// 8. Final Cleanup: websocket connections follow ctx, REST requests get a grace period.
	// Sockets are drained before the workers stop and the database closes, so that
	// a message being stored when its connection closed is still written.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	drained := make(chan struct{})
	go func() {
		wsHandler.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("WebSocket connections still open after shutdown timeout")
	}
	sup.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return code, err
}
