package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"topic-chatter/internal/dialog"
)

const (
	topicPrefix  = "topic:"
	backToTopics = "back_to_topics"

	msgUnauthorized = "Извините, у вас нет доступа к этому боту."
	msgStart        = "Привет! Я ассистент. Пишите текстом, голосом или присылайте .txt файлы.\n" +
		"/topic <название> выбирает тему, /topic без названия возвращает тему default, /topics показывает список тем."
	msgChooseTopic = "Выберите тему:"
	msgTopicReset  = "Тема сброшена на default."
	msgBackButton  = "← Назад к темам"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	if !b.authSvc.IsAllowed(userID) {
		b.logger.Warn("unauthorized access attempt", zap.Int64("user_id", userID), zap.String("username", msg.From.UserName))
		b.sendMessage(msg.Chat.ID, msgUnauthorized)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(msg)
	case msg.Voice != nil || msg.Audio != nil:
		b.handleVoice(ctx, msg)
	case msg.Document != nil:
		b.handleDocument(ctx, msg)
	case msg.Text != "":
		b.handleText(ctx, msg.Chat.ID, userID, msg.Text)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, msgStart)
	case "topic":
		sel := b.store.SetCurrentTopic(msg.From.ID, strings.TrimSpace(msg.CommandArguments()))
		b.sendMessage(msg.Chat.ID, selectionText(sel))
	case "topics":
		out := tgbotapi.NewMessage(msg.Chat.ID, msgChooseTopic)
		out.ReplyMarkup = topicsKeyboard(b.store.TopicNames(msg.From.ID))
		if _, err := b.s.Send(out); err != nil {
			b.logger.Error("failed to send topics", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		}
	default:
		b.sendMessage(msg.Chat.ID, "Неизвестная команда.")
	}
}

func selectionText(sel dialog.TopicSelection) string {
	if sel.Kind == dialog.SelectionSelected {
		return sel.Message
	}
	return msgTopicReset + "\nДоступные темы: " + strings.Join(sel.Topics, ", ")
}

// topicsKeyboard lists non-default topics first and default last.
func topicsKeyboard(names []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(names))
	hasDefault := false
	for _, name := range names {
		if name == dialog.DefaultTopic {
			hasDefault = true
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(name, topicPrefix+name)))
	}
	if hasDefault {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(dialog.DefaultTopic, topicPrefix+dialog.DefaultTopic)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback", zap.Error(err))
	}
	userID := cb.From.ID
	if !b.authSvc.IsAllowed(userID) {
		b.sendMessage(cb.Message.Chat.ID, msgUnauthorized)
		return
	}

	chatID, messageID := cb.Message.Chat.ID, cb.Message.MessageID
	switch {
	case cb.Data == backToTopics:
		b.editWithTopics(chatID, messageID, userID, msgChooseTopic)
	case strings.HasPrefix(cb.Data, topicPrefix):
		name := strings.TrimPrefix(cb.Data, topicPrefix)
		sel := b.store.SetCurrentTopic(userID, name)
		if name == dialog.DefaultTopic {
			b.editWithTopics(chatID, messageID, userID, sel.Message+"\n\n"+msgChooseTopic)
			return
		}
		back := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msgBackButton, backToTopics)))
		b.edit(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, sel.Message, back))
	default:
		b.logger.Debug("unknown callback", zap.String("data", cb.Data))
	}
}

func (b *Bot) editWithTopics(chatID int64, messageID int, userID int64, text string) {
	b.edit(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, topicsKeyboard(b.store.TopicNames(userID))))
}

func (b *Bot) edit(c tgbotapi.EditMessageTextConfig) {
	if _, err := b.s.Send(c); err != nil {
		b.logger.Error("failed to edit message", zap.Int64("chat_id", c.ChatID), zap.Error(err))
	}
}

// handleText stores the message in the current topic, asks the assistant
// with the recent context and the topic's document index, and stores the
// answer in the same topic even if the user switches meanwhile.
func (b *Bot) handleText(ctx context.Context, chatID, userID int64, text string) {
	topic := b.router.CurrentTopic(userID)
	b.store.AddMessage(userID, dialog.Message{Role: dialog.RoleUser, Text: text}, topic)

	msgs, err := b.router.TopicContext(userID, topic)
	if err != nil {
		b.logger.Error("failed to build context", zap.Int64("user_id", userID), zap.Error(err))
		b.sendMessage(chatID, "Ошибка: "+err.Error())
		return
	}
	indexID := b.store.TopicIndex(userID, topic)
	b.logger.Debug("asking assistant",
		zap.Int64("user_id", userID),
		zap.String("topic", topic),
		zap.Int("context", len(msgs)),
		zap.Bool("documents", indexID != ""),
	)
	answer, err := b.assistant.Complete(ctx, userID, msgs, indexID)
	if err != nil {
		b.logger.Error("assistant failed", zap.Int64("user_id", userID), zap.Error(err))
		b.sendMessage(chatID, "Ошибка: "+err.Error())
		return
	}
	b.store.AddMessage(userID, dialog.Message{Role: dialog.RoleAssistant, Text: answer}, topic)
	b.sendMessage(chatID, answer)
}
