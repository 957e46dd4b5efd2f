package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solwallet/service/config"
	"github.com/brojonat/solwallet/service/metrics"
	natssvc "github.com/brojonat/solwallet/service/nats"
	"github.com/brojonat/solwallet/service/server"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal in deployed environments
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.SolanaNetwork,
	)

	m := metrics.NewMetrics(nil)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	endpoint, err := cfg.RPCEndpoint()
	if err != nil {
		logger.Error("failed to select RPC endpoint", "error", err)
		os.Exit(1)
	}
	ledger := solana.NewClient(solana.NewRPCClient(endpoint), endpoint, m, logger,
		solana.WithCommitment(cfg.SolanaCommitment),
		solana.WithPollInterval(cfg.ConfirmPollInterval),
		solana.WithRateLimit(cfg.RPCRateLimitRPS, cfg.RPCRateLimitBurst),
	)
	logger.Info("initialized solana RPC client", "commitment", cfg.SolanaCommitment)

	// The signing agent is optional: without NATS the session runs with no
	// agent and reports it as absent.
	var agent wallet.Agent
	nc, err := natssvc.Dial(cfg.NATSURL, "solwallet-server", logger)
	if err != nil {
		logger.Warn("signing agent transport unavailable", "nats_url", cfg.NATSURL, "error", err)
	} else {
		defer nc.Drain()
		agent = natssvc.NewRemote(nc, cfg.AgentSubjectPrefix, m, logger)
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "subject_prefix", cfg.AgentSubjectPrefix)
	}

	notices := wallet.NewNoticeBoard(32)
	session, err := wallet.NewSession(wallet.Options{
		Ledger:          ledger,
		Agent:           agent,
		Notifier:        notices,
		Network:         cfg.SolanaNetwork,
		CallTimeout:     cfg.CallTimeout,
		SignTimeout:     cfg.SignTimeout,
		ConfirmTimeout:  cfg.ConfirmTimeout,
		PresenceTimeout: cfg.AgentPresenceTimeout,
		Metrics:         m,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create wallet session", "error", err)
		os.Exit(1)
	}

	// Silent reconnect to a previously trusted agent
	initCtx, initCancel := context.WithTimeout(context.Background(), cfg.CallTimeout+cfg.AgentPresenceTimeout)
	session.Initialize(initCtx)
	initCancel()

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, session, notices, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"session_id", session.ID(),
		"agent_configured", agent != nil,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
