package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"topic-chatter/internal/auth"
	"topic-chatter/internal/calendar"
	"topic-chatter/internal/config"
	"topic-chatter/internal/dialog"
	"topic-chatter/internal/history"
	"topic-chatter/internal/index"
	"topic-chatter/internal/llm"
	"topic-chatter/internal/mcptools"
	"topic-chatter/internal/notifier"
	"topic-chatter/internal/scheduler"
	"topic-chatter/internal/speech"
	"topic-chatter/internal/storage"
	"topic-chatter/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bot stopped with error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	whitelist, err := cfg.Whitelist()
	if err != nil {
		return err
	}

	backend, closeBackend, err := storage.Open(cfg.DialogBackend, cfg.DialogsDir, cfg.DialogBoltPath)
	if err != nil {
		return fmt.Errorf("open dialog storage: %w", err)
	}
	defer func() { _ = closeBackend() }()
	store := dialog.NewStore(backend, logger)
	router := history.NewRouter(store, cfg.ContextMessages)

	client, err := llm.NewClient(cfg)
	if err != nil {
		return err
	}

	var tools llm.ToolRunner
	if cfg.MCPServerPath != "" {
		mc, err := mcptools.Connect(ctx, cfg.MCPServerPath, logger)
		if err != nil {
			logger.Warn("MCP tools disabled", zap.Error(err))
		} else {
			defer func() { _ = mc.Close() }()
			tools = mc
		}
	}
	assistant := llm.NewAssistant(client, readSystemPrompt(cfg.SystemPromptPath, logger), tools, logger)

	authSvc := auth.NewService(whitelist)
	if !authSvc.Restricted() {
		logger.Warn("whitelist is empty: the bot answers everyone")
	}
	deps := telegram.Deps{
		Auth:       authSvc,
		Store:      store,
		Router:     router,
		Assistant:  assistant,
		Recognizer: newRecognizer(cfg, logger),
		Logger:     logger,
	}
	if cfg.OpenAIAPIKey != "" {
		ix := index.New(llm.NewOpenAIConfig(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.YandexFolderID), cfg.OpenAIModel, logger)
		deps.Indexer = ix
		assistant.SetRetriever(ix)
	}
	bot, err := telegram.New(cfg.TelegramBotToken, deps)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Start(gctx) })

	n, err := newNotifier(ctx, cfg, whitelist, assistant, bot, logger)
	if err != nil {
		return err
	}
	if n != nil {
		g.Go(func() error { return n.Run(gctx) })
	}

	err = g.Wait()
	if n != nil {
		n.Wait()
	}
	logger.Info("shutdown complete")
	return err
}

func newNotifier(ctx context.Context, cfg *config.Config, whitelist []int64, gen notifier.Generator, sender notifier.Sender, logger *zap.Logger) (*notifier.Notifier, error) {
	if len(whitelist) == 0 {
		logger.Info("calendar notifications disabled: empty whitelist")
		return nil, nil
	}
	var source calendar.Source
	switch cfg.FeedProvider {
	case config.FeedGoogle:
		calendars, err := cfg.CalendarIDs()
		if err != nil {
			return nil, err
		}
		gs, err := calendar.NewGoogleSource(ctx, cfg.GoogleCredentials, cfg.GoogleRefresh, calendars, logger)
		if err != nil {
			return nil, err
		}
		source = gs
	case config.FeedHTTP:
		if cfg.ICSURL == "" {
			logger.Info("calendar notifications disabled: ICS_URL is empty")
			return nil, nil
		}
		source = calendar.NewHTTPSource(cfg.ICSURL, cfg.ICSAPIKey, nil, logger)
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.FeedProvider)
	}

	sched, err := scheduler.Parse(cfg.ICSPollCron, cfg.ICSPollInterval)
	if err != nil {
		return nil, err
	}
	return notifier.New(whitelist, source, gen, sender, sched,
		notifier.WithSystemPrompt(cfg.ICSSystemPrompt),
		notifier.WithLogger(logger),
	), nil
}

func newRecognizer(cfg *config.Config, logger *zap.Logger) speech.Recognizer {
	switch cfg.STTProvider {
	case config.SpeechOpenAI:
		if cfg.OpenAIAPIKey != "" {
			return speech.NewWhisper(llm.NewOpenAIConfig(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.YandexFolderID))
		}
	case config.SpeechYandex:
		if cfg.YandexAPIKey != "" {
			return speech.NewSpeechKit(cfg.YandexAPIKey, cfg.YandexFolderID)
		}
	}
	logger.Info("speech recognition disabled", zap.String("provider", cfg.STTProvider))
	return nil
}

func readSystemPrompt(path string, logger *zap.Logger) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("system prompt unreadable", zap.String("path", path), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(string(data))
}
