// Command calendar-mcp-server serves calendar and dialog lookups as MCP
// tools over stdio. Point MCP_SERVER_PATH at it to give the assistant
// access to them.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v6"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"topic-chatter/internal/calendar"
	"topic-chatter/internal/dialog"
	"topic-chatter/internal/storage"
)

type serverConfig struct {
	ICSURL         string `env:"ICS_URL"`
	ICSAPIKey      string `env:"ICS_API_KEY"`
	DialogBackend  string `env:"DIALOG_BACKEND" envDefault:"file"`
	DialogsDir     string `env:"DIALOGS_DIR" envDefault:"dialogs"`
	DialogBoltPath string `env:"DIALOG_BOLT_PATH" envDefault:"data/dialogs.bolt"`
}

type EventsParams struct {
	UserID int64 `json:"user_id" mcp:"Telegram user id whose calendar to read"`
}

type TopicsParams struct {
	UserID int64 `json:"user_id" mcp:"Telegram user id whose dialog topics to list"`
}

type toolServer struct {
	source calendar.Source
	store  *dialog.Store
	logger *zap.Logger
}

func textResult(text string, isError bool) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *toolServer) UpcomingEvents(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[EventsParams]) (*mcp.CallToolResultFor[any], error) {
	if s.source == nil {
		return textResult("calendar feed is not configured", true), nil
	}
	userID := params.Arguments.UserID
	events := s.source.FetchEvents(ctx, userID)
	s.logger.Info("calendar_upcoming_events", zap.Int64("user_id", userID), zap.Int("events", len(events)))
	if len(events) == 0 {
		return textResult("no events", false), nil
	}
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "- %s (%s - %s)", ev.Title, ev.StartDatetime, ev.EndDatetime)
		if ev.Description != "" {
			fmt.Fprintf(&b, ": %s", ev.Description)
		}
		b.WriteString("\n")
	}
	return textResult(strings.TrimSuffix(b.String(), "\n"), false), nil
}

func (s *toolServer) DialogTopics(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[TopicsParams]) (*mcp.CallToolResultFor[any], error) {
	userID := params.Arguments.UserID
	current := s.store.CurrentTopic(userID)
	names := s.store.TopicNames(userID)
	s.logger.Info("dialog_topics", zap.Int64("user_id", userID), zap.Int("topics", len(names)))
	return textResult(fmt.Sprintf("current: %s\ntopics: %s", current, strings.Join(names, ", ")), false), nil
}

func main() {
	// stdout carries the protocol; zap's production logger writes to stderr.
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := serverConfig{}
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("failed to parse config", zap.Error(err))
	}
	backend, closeBackend, err := storage.Open(cfg.DialogBackend, cfg.DialogsDir, cfg.DialogBoltPath)
	if err != nil {
		logger.Fatal("failed to open dialog storage", zap.Error(err))
	}
	defer func() { _ = closeBackend() }()

	ts := &toolServer{store: dialog.NewStore(backend, logger), logger: logger}
	if cfg.ICSURL != "" {
		ts.source = calendar.NewHTTPSource(cfg.ICSURL, cfg.ICSAPIKey, nil, logger)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "topic-chatter-calendar-mcp",
		Version: "1.0.0",
	}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "calendar_upcoming_events",
		Description: "Lists the user's calendar events",
	}, ts.UpcomingEvents)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "dialog_topics",
		Description: "Lists the user's conversation topics and the current one",
	}, ts.DialogTopics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("calendar MCP server started")
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		logger.Fatal("MCP server failed", zap.Error(err))
	}
}
