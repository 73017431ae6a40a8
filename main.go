package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // rule timezones must resolve in minimal containers

	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/composer"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/config"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/crypto"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/dispatcher"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/event_processor"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/handler"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/instagram_client"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/ledger"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/llm"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/normalizer"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/repository"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/resolver"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/rules"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/server"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/telegram_bot"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Database connection
	db, err := repository.NewDB(cfg.Database.Type, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.MigrateDB(db, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	tokens, err := crypto.NewTokenCipher(cfg.Crypto.MasterKey)
	if err != nil {
		logger.Fatal("Failed to initialize token cipher", zap.Error(err))
	}

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Telegram bot for operator alerts (nil when disabled)
	bot, err := telegram_bot.NewBot(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram bot, continuing without alerts", zap.Error(err))
		bot = nil
	}
	if bot != nil {
		go func() {
			if err := bot.Start(ctx); err != nil {
				logger.Error("Telegram bot failed", zap.Error(err))
			}
		}()
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db, logger)
	ruleRepo := repository.NewRuleRepository(db, logger)
	usageRepo := repository.NewUsageRepository(db, logger)
	conversationRepo := repository.NewConversationRepository(db, logger)
	eventRepo := repository.NewProcessedEventRepository(db, logger)

	// Contextual replies are optional; without providers rules fall back to the configured reply
	var generator composer.Generator
	if len(cfg.LLM.Providers) > 0 {
		multi, err := llm.NewMultiProviderClient(ctx, cfg.LLM.Providers, cfg.LLM.MaxFailuresBeforeSwitch, logger)
		if err != nil {
			logger.Warn("No reply provider available, using fallback replies", zap.Error(err))
		} else {
			defer multi.Close()
			generator = multi
		}
	}

	graph := instagram_client.NewClient(cfg.Instagram.GraphAPIURL, logger)
	outbound := dispatcher.New(graph, tokens, accountRepo, bot, dispatcher.NewLimiter(cfg.Dispatch.MinInterval), dispatcher.Config{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		InitialBackoff: cfg.Dispatch.InitialBackoff,
		MaxBackoff:     cfg.Dispatch.MaxBackoff,
		CallTimeout:    cfg.Dispatch.CallTimeout,
	}, logger)

	eventLedger := ledger.New(eventRepo, bot, cfg.Processing.ClaimTTL, cfg.Processing.MaxEventAttempts, logger)

	processor := event_processor.NewProcessor(
		resolver.New(accountRepo, ruleRepo, logger),
		rules.NewSelector(ruleRepo, rules.NewGate(usageRepo, logger), logger),
		eventLedger,
		composer.New(generator, cfg.Processing.FallbackReply, logger),
		outbound,
		usageRepo,
		conversationRepo,
		event_processor.Config{
			Workers:      cfg.Processing.Workers,
			EventTimeout: cfg.Processing.EventTimeout,
			HistoryLimit: cfg.Processing.HistoryLimit,
		},
		logger,
	)

	srv := server.NewServer(cfg.Server.Port, []byte(cfg.Auth.JWTSecret), server.Handlers{
		Webhook:       handler.NewWebhookHandler(normalizer.New(logger), processor, cfg.Instagram.VerifyToken, cfg.Instagram.AppSecret, logger),
		Conversations: handler.NewConversationHandler(conversationRepo, cfg.Processing.HistoryLimit, logger),
		Events:        handler.NewEventHandler(eventLedger, processor, logger),
	}, logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Run() }()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := processor.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("In-flight events were cancelled at shutdown; they stay claimed until the claim TTL passes")
		} else {
			logger.Error("Processor shutdown failed", zap.Error(err))
		}
	}
	logger.Info("Application stopped.")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
