package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/compliance-agent/internal/audit"
	"github.com/p-blackswan/compliance-agent/internal/config"
	"github.com/p-blackswan/compliance-agent/internal/docstore"
	"github.com/p-blackswan/compliance-agent/internal/generate"
	"github.com/p-blackswan/compliance-agent/internal/health"
	"github.com/p-blackswan/compliance-agent/internal/metrics"
	"github.com/p-blackswan/compliance-agent/internal/mgmt"
	"github.com/p-blackswan/compliance-agent/internal/notify"
	"github.com/p-blackswan/compliance-agent/internal/project"
	"github.com/p-blackswan/compliance-agent/internal/proposal"
	"github.com/p-blackswan/compliance-agent/internal/raid"
	"github.com/p-blackswan/compliance-agent/internal/workflow"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("data_dir", cfg.DataDir).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Bool("generator_enabled", cfg.GeneratorEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting compliance agent")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to create data directory")
	}

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Metrics
	metricsCollector := metrics.New()

	// Core stores
	registry := project.NewRegistry(cfg.DataDir, logger)
	docs := docstore.New(cfg.DataDir, logger)
	auditLog := audit.New(cfg.DataDir, cfg.AuditLogContent, logger)
	register := raid.NewRegister(cfg.DataDir, auditLog, logger, raid.WithMetrics(metricsCollector))
	machine := workflow.NewMachine(registry, auditLog, logger)

	// Content generator (optional — template fallback otherwise)
	var generator generate.Generator
	if cfg.GeneratorEnabled() {
		generator = generate.NewAnthropicGenerator(
			cfg.AnthropicAPIKey,
			generate.WithModel(cfg.AnthropicModel),
			generate.WithLogger(logger),
		)
		logger.Info().Str("model", cfg.AnthropicModel).Msg("Anthropic generator initialized")
	} else {
		logger.Info().Msg("no generator configured — proposals will use template fallback")
	}

	// Reviewer notifications (optional)
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SlackEnabled() {
		notifier = notify.NewMultiNotifier(
			notify.NewLogNotifier(logger),
			notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, logger),
		)
		logger.Info().Str("channel", cfg.SlackChannel).Msg("Slack notifications enabled")
	}

	// Proposal manager
	manager := proposal.NewManager(docs, registry, auditLog, generator, logger,
		proposal.WithTTL(cfg.ProposalTTL),
		proposal.WithGeneratorTimeout(cfg.GeneratorTimeout),
		proposal.WithNotifier(notifier),
		proposal.WithMetrics(metricsCollector),
		proposal.WithSideEffectDeps(proposal.SideEffectDeps{
			Raid:     register,
			Workflow: machine,
		}),
	)

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("data_dir", func(ctx context.Context) health.Status {
		if _, err := os.Stat(cfg.DataDir); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("generator", func(ctx context.Context) health.Status {
		if !cfg.GeneratorEnabled() {
			return health.StatusDegraded
		}
		return health.StatusOK
	})

	if !checker.IsReady(ctx) {
		logger.Warn().Msg("one or more dependencies reported down at startup")
	}

	// Re-initialize document stores for known projects; safe to repeat.
	if projects, err := registry.List(""); err == nil {
		for _, p := range projects {
			if err := docs.EnsureInitialized(p.Key); err != nil {
				logger.Error().Err(err).Str("project", p.Key).Msg("failed to initialize document store")
			}
		}
	}

	// Management API
	handlers := mgmt.NewHandlers(manager, registry, register, machine, docs, auditLog, checker, logger)
	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.MgmtCORSOrigins,
		TLSCert:     cfg.MgmtTLSCert,
		TLSKey:      cfg.MgmtTLSKey,
	}, handlers, metricsCollector, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("compliance agent stopped")
}
