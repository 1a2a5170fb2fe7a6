package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"topic-chatter/internal/auth"
	"topic-chatter/internal/dialog"
	"topic-chatter/internal/history"
	"topic-chatter/internal/llm"
	"topic-chatter/internal/speech"
)

// Assistant answers a conversation given as model messages. indexID names
// the topic's document index and may be empty.
type Assistant interface {
	Complete(ctx context.Context, userID int64, history []llm.Message, indexID string) (string, error)
}

// DocumentIndexer stores uploaded documents in a per-topic search index.
type DocumentIndexer interface {
	AddDocument(ctx context.Context, indexID, storeName, filename string, data []byte) (string, error)
}

// Deps are the collaborators of the bot. Recognizer and Indexer are optional.
type Deps struct {
	Auth       *auth.Service
	Store      *dialog.Store
	Router     *history.Router
	Assistant  Assistant
	Recognizer speech.Recognizer
	Indexer    DocumentIndexer
	Logger     *zap.Logger
}

type Bot struct {
	api        *tgbotapi.BotAPI
	s          sender
	authSvc    *auth.Service
	store      *dialog.Store
	router     *history.Router
	assistant  Assistant
	recognizer speech.Recognizer
	indexer    DocumentIndexer
	httpClient *http.Client
	logger     *zap.Logger
}

func New(botToken string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram api: %w", err)
	}
	b := newBot(api, deps)
	b.api = api
	b.logger.Info("authorized on telegram", zap.String("username", api.Self.UserName))
	return b, nil
}

func newBot(s sender, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		s:          s,
		authSvc:    deps.Auth,
		store:      deps.Store,
		router:     deps.Router,
		assistant:  deps.Assistant,
		recognizer: deps.Recognizer,
		indexer:    deps.Indexer,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.Named("telegram"),
	}
}

// Start consumes updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("listening for updates")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("update loop stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", zap.Int("update_id", update.UpdateID), zap.Any("panic", r))
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	}
}

// SendText delivers a plain message. It is used for calendar notifications.
func (b *Bot) SendText(chatID int64, text string) error {
	if _, err := b.s.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if err := b.SendText(chatID, text); err != nil {
		b.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
