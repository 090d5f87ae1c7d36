package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/server"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Centralizing here instead of calling os.Exit in place keeps every defer
// (database close, index close) running on the way out.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.SetupLogger(config.LogLevel, config.LogFile)
	ctx := context.Background()

	// 2. Message log (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Search index (Bluge)
	index, err := search.NewMessageIndex(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = index.Close()
	}()

	// 4. Moderation pipeline
	censored, err := runtime.LoadCensoredWords()
	if err != nil {
		return exitRuntime, fmt.Errorf("censored word loading failed: %w", err)
	}
	logger.Info("Censored dictionaries loaded", "words", len(censored.Words), "languages", censored.Languages)

	moderator, err := moderation.NewModerator(censored.Words, charReplacement, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}
	sanitizer := moderation.NewSanitizer(moderator, logger)

	// 5. Broker & fan-out
	stats := observability.NewStats(logger)
	repository := repositories.NewMessageRepository(db, logger, config.HistoryLimit)
	broker := runtime.NewBroker(logger, runtime.NewPresence(), runtime.NewMembership(),
		repository, sanitizer, stats,
		config.BufferSize, config.MaxContentLength, config.MaxImageBytes)
	broker.AddSinks(index)

	if logger.Enabled(ctx, slog.LevelDebug) {
		debugPort := 8081
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint))
		internal.StartDebugServer(db, debugPort, endpoint, internal.MessageMapper, func() map[string]any {
			snap := stats.Latest()
			return map[string]any{
				"connections": snap.ConnectionsActive,
				"messages":    snap.MessagesRelayed,
				"delivered":   snap.EventsDelivered,
				"dropped":     snap.DeliveriesDropped,
			}
		})
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(logger)
	sup.Add(workers.NewEventFanout(logger, broker.Events(), config.SinkTimeout, stats))

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		logger.Info("Starting fan-out worker...")
		sup.Run(ctx)
	}()

	// 7. HTTP server, blocks until signal or listen failure
	httpServer := server.New(logger, broker, repository, index, stats, config.ConnectionBufferSize)
	logger.Info("Relay starting", "addr", config.Addr())
	if err := httpServer.Serve(ctx, config.Addr()); err != nil {
		sup.Stop()
		<-supDone
		return exitRuntime, fmt.Errorf("http server error: %w", err)
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
