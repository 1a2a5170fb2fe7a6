package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"topic-chatter/internal/index"
)

// maxDocumentSize matches the Bot API download limit.
const maxDocumentSize = 20 << 20

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	if b.recognizer == nil {
		b.sendMessage(msg.Chat.ID, "Распознавание речи не настроено.")
		return
	}
	fileID, name := "", "voice.ogg"
	if msg.Voice != nil {
		fileID = msg.Voice.FileID
	} else {
		fileID = msg.Audio.FileID
		if msg.Audio.FileName != "" {
			name = msg.Audio.FileName
		}
	}

	audio, err := b.download(ctx, fileID)
	if err != nil {
		b.logger.Error("failed to download audio", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.sendMessage(msg.Chat.ID, "Ошибка: "+err.Error())
		return
	}
	text, err := b.recognizer.Recognize(ctx, audio, name)
	if err != nil {
		b.logger.Error("speech recognition failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.sendMessage(msg.Chat.ID, "Ошибка: "+err.Error())
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		b.sendMessage(msg.Chat.ID, "Не удалось распознать речь.")
		return
	}
	b.handleText(ctx, msg.Chat.ID, msg.From.ID, text)
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	doc := msg.Document
	if strings.ToLower(filepath.Ext(doc.FileName)) != ".txt" {
		b.sendMessage(msg.Chat.ID, "Поддерживаются только файлы .txt")
		return
	}
	if doc.FileSize > maxDocumentSize {
		b.sendMessage(msg.Chat.ID, "Файл слишком большой.")
		return
	}

	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.logger.Error("failed to download document", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.sendMessage(msg.Chat.ID, "Ошибка: "+err.Error())
		return
	}
	if b.indexer != nil {
		b.indexDocument(ctx, msg.From.ID, doc.FileName, data)
	}

	prompt := string(data)
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		prompt = caption + "\n\n" + prompt
	}
	b.handleText(ctx, msg.Chat.ID, msg.From.ID, prompt)
}

// indexDocument adds the file to the current topic's index, creating the
// index on first use. Failures are logged and do not stop the reply.
func (b *Bot) indexDocument(ctx context.Context, userID int64, filename string, data []byte) {
	topic := b.store.CurrentTopic(userID)
	current := b.store.TopicIndex(userID, topic)
	id, err := b.indexer.AddDocument(ctx, current, index.StoreName(userID, topic), filename, data)
	if err != nil {
		b.logger.Warn("failed to index document", zap.Int64("user_id", userID), zap.String("topic", topic), zap.Error(err))
	}
	if id != "" && id != current {
		b.store.SetTopicIndex(userID, topic, id)
	}
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.s.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
}
