package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topic-chatter/internal/auth"
	"topic-chatter/internal/dialog"
	"topic-chatter/internal/history"
	"topic-chatter/internal/llm"
	"topic-chatter/internal/storage"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	fileURL  string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("no file server")
	}
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeAssistant struct {
	got     []llm.Message
	indexID string
	answer  string
	err     error
	during  func()
}

func (f *fakeAssistant) Complete(_ context.Context, _ int64, msgs []llm.Message, indexID string) (string, error) {
	f.got = msgs
	f.indexID = indexID
	if f.during != nil {
		f.during()
	}
	return f.answer, f.err
}

type fakeRecognizer struct {
	text string
	got  []byte
}

func (f *fakeRecognizer) Recognize(_ context.Context, audio []byte, _ string) (string, error) {
	f.got = audio
	return f.text, nil
}

type fakeIndexer struct {
	calls []string
	id    string
}

func (f *fakeIndexer) AddDocument(_ context.Context, indexID, storeName, filename string, _ []byte) (string, error) {
	f.calls = append(f.calls, indexID+"|"+storeName+"|"+filename)
	if indexID != "" {
		return indexID, nil
	}
	return f.id, nil
}

type fixture struct {
	bot   *Bot
	api   *fakeAPI
	store *dialog.Store
	llm   *fakeAssistant
}

func newFixture(t *testing.T, allowed ...int64) *fixture {
	store := dialog.NewStore(storage.NewFileStore(t.TempDir()), nil)
	api := &fakeAPI{}
	assistant := &fakeAssistant{answer: "ответ"}
	b := newBot(api, Deps{
		Auth:      auth.NewService(allowed),
		Store:     store,
		Router:    history.NewRouter(store, 15),
		Assistant: assistant,
	})
	return &fixture{bot: b, api: api, store: store, llm: assistant}
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: userID}, Chat: &tgbotapi.Chat{ID: userID}, Text: text}
}

func command(userID int64, text string) *tgbotapi.Message {
	m := textMessage(userID, text)
	cmdLen := len(strings.Fields(text)[0])
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	return m
}

func TestHandleMessage_Unauthorized(t *testing.T) {
	f := newFixture(t, 1)
	f.bot.handleMessage(context.Background(), textMessage(2, "hi"))

	assert.Equal(t, []string{msgUnauthorized}, f.api.texts())
	assert.Nil(t, f.llm.got)
}

func TestHandleText_StoresBothSidesInCurrentTopic(t *testing.T) {
	f := newFixture(t)
	f.store.SetCurrentTopic(7, "work")

	f.bot.handleMessage(context.Background(), textMessage(7, "привет"))

	assert.Equal(t, []string{"ответ"}, f.api.texts())
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "привет"}}, f.llm.got)
	msgs, err := f.store.LastMessages(7, 10, "work")
	require.NoError(t, err)
	assert.Equal(t, []dialog.Message{
		{Role: dialog.RoleUser, Text: "привет"},
		{Role: dialog.RoleAssistant, Text: "ответ"},
	}, msgs)
	def, err := f.store.LastMessages(7, 10, dialog.DefaultTopic)
	require.NoError(t, err)
	assert.Empty(t, def)
}

func TestHandleText_ReplyStaysInTopicAfterSwitch(t *testing.T) {
	f := newFixture(t)
	f.store.SetCurrentTopic(7, "work")
	f.llm.during = func() { f.store.SetCurrentTopic(7, "travel") }

	f.bot.handleMessage(context.Background(), textMessage(7, "план?"))

	work, err := f.store.LastMessages(7, 10, "work")
	require.NoError(t, err)
	assert.Equal(t, []dialog.Message{
		{Role: dialog.RoleUser, Text: "план?"},
		{Role: dialog.RoleAssistant, Text: "ответ"},
	}, work)
	travel, err := f.store.LastMessages(7, 10, "travel")
	require.NoError(t, err)
	assert.Empty(t, travel)
}

func TestHandleText_PassesTopicIndex(t *testing.T) {
	f := newFixture(t)
	f.store.SetCurrentTopic(8, "docs")
	f.store.SetTopicIndex(8, "docs", "vs_42")

	f.bot.handleMessage(context.Background(), textMessage(8, "что в договоре?"))
	assert.Equal(t, "vs_42", f.llm.indexID)

	f.store.SetCurrentTopic(8, "other")
	f.bot.handleMessage(context.Background(), textMessage(8, "а здесь?"))
	assert.Empty(t, f.llm.indexID)
}

func TestHandleText_AssistantErrorIsReported(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("quota exceeded")

	f.bot.handleMessage(context.Background(), textMessage(3, "q"))

	assert.Equal(t, []string{"Ошибка: quota exceeded"}, f.api.texts())
	msgs, err := f.store.LastMessages(3, 10, "")
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "only the user message is stored")
}

func TestTopicCommand(t *testing.T) {
	f := newFixture(t)

	f.bot.handleMessage(context.Background(), command(5, "/topic travel"))
	assert.Equal(t, "travel", f.store.CurrentTopic(5))

	f.bot.handleMessage(context.Background(), command(5, "/topic"))
	assert.Equal(t, dialog.DefaultTopic, f.store.CurrentTopic(5))

	texts := f.api.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Текущая тема установлена: travel", texts[0])
	assert.Contains(t, texts[1], msgTopicReset)
	assert.Contains(t, texts[1], "default, travel")
}

func TestTopicsKeyboard_DefaultLast(t *testing.T) {
	kb := topicsKeyboard([]string{"default", "a", "b"})
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "a", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "topic:b", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "default", kb.InlineKeyboard[2][0].Text)
}

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
}

func TestHandleCallback_SelectsTopic(t *testing.T) {
	f := newFixture(t)

	f.bot.handleCallback(callback(9, "topic:ideas"))
	assert.Equal(t, "ideas", f.store.CurrentTopic(9))
	require.Len(t, f.api.sent, 1)
	edit := f.api.sent[0].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, "Текущая тема установлена: ideas", edit.Text)
	assert.Equal(t, backToTopics, *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	assert.Len(t, f.api.requests, 1)

	f.bot.handleCallback(callback(9, backToTopics))
	edit = f.api.sent[1].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, msgChooseTopic, edit.Text)
	assert.Len(t, edit.ReplyMarkup.InlineKeyboard, 2)

	f.bot.handleCallback(callback(9, "topic:default"))
	assert.Equal(t, dialog.DefaultTopic, f.store.CurrentTopic(9))
	edit = f.api.sent[2].(tgbotapi.EditMessageTextConfig)
	assert.Contains(t, edit.Text, msgChooseTopic)
}

func fileServer(t *testing.T, body string) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHandleVoice_TranscribesThenAnswers(t *testing.T) {
	f := newFixture(t)
	f.api.fileURL = fileServer(t, "OggS-audio")
	rec := &fakeRecognizer{text: " какая погода? "}
	f.bot.recognizer = rec

	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "v1"}
	f.bot.handleMessage(context.Background(), msg)

	assert.Equal(t, []byte("OggS-audio"), rec.got)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "какая погода?"}}, f.llm.got)
	assert.Equal(t, []string{"ответ"}, f.api.texts())
}

func TestHandleVoice_NoRecognizer(t *testing.T) {
	f := newFixture(t)
	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "v1"}
	f.bot.handleMessage(context.Background(), msg)
	assert.Equal(t, []string{"Распознавание речи не настроено."}, f.api.texts())
}

func TestHandleDocument_RejectsNonText(t *testing.T) {
	f := newFixture(t)
	msg := textMessage(6, "")
	msg.Document = &tgbotapi.Document{FileID: "d1", FileName: "report.pdf"}
	f.bot.handleMessage(context.Background(), msg)
	assert.Equal(t, []string{"Поддерживаются только файлы .txt"}, f.api.texts())
}

func TestHandleDocument_IndexesIntoCurrentTopic(t *testing.T) {
	f := newFixture(t)
	f.api.fileURL = fileServer(t, "file body")
	ix := &fakeIndexer{id: "vs_1"}
	f.bot.indexer = ix
	f.store.SetCurrentTopic(6, "docs")

	msg := textMessage(6, "")
	msg.Caption = "Summarize"
	msg.Document = &tgbotapi.Document{FileID: "d1", FileName: "notes.TXT"}
	f.bot.handleMessage(context.Background(), msg)
	f.bot.handleMessage(context.Background(), msg)

	assert.Equal(t, []string{
		"|topic-chatter-6-docs|notes.TXT",
		"vs_1|topic-chatter-6-docs|notes.TXT",
	}, ix.calls)
	assert.Equal(t, "vs_1", f.store.TopicIndex(6, "docs"))
	assert.Equal(t, "vs_1", f.llm.indexID)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Summarize\n\nfile body"}, f.llm.got[len(f.llm.got)-1])
}

func TestSendText(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bot.SendText(42, "Обновления в календаре:\n\nok"))
	assert.Equal(t, []string{"Обновления в календаре:\n\nok"}, f.api.texts())
}
