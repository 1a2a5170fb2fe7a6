package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

const (
	BackendFile = "file"
	BackendBolt = "bolt"

	FeedHTTP   = "http"
	FeedGoogle = "google"

	SpeechYandex = "yandex"
	SpeechOpenAI = "openai"
)

type Config struct {
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN,required"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	WhitelistFile    string  `env:"WHITELIST_FILE"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`
	YandexAPIKey     string      `env:"YANDEX_API_KEY"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`
	ICSSystemPrompt  string `env:"ICS_SYSTEM_PROMPT" envDefault:"Кратко и по-дружески опиши пользователю изменения в его календаре."`

	// Dialogs
	DialogBackend   string `env:"DIALOG_BACKEND" envDefault:"file"`
	DialogsDir      string `env:"DIALOGS_DIR" envDefault:"dialogs"`
	DialogBoltPath  string `env:"DIALOG_BOLT_PATH" envDefault:"data/dialogs.bolt"`
	ContextMessages int    `env:"CONTEXT_MESSAGES" envDefault:"15"`

	// Calendar feed
	FeedProvider      string            `env:"FEED_PROVIDER" envDefault:"http"`
	ICSURL            string            `env:"ICS_URL"`
	ICSAPIKey         string            `env:"ICS_API_KEY"`
	ICSPollInterval   time.Duration     `env:"ICS_POLL_INTERVAL" envDefault:"5m"`
	ICSPollCron       string            `env:"ICS_POLL_CRON"`
	GoogleCredentials string            `env:"GOOGLE_CREDENTIALS_JSON"`
	GoogleRefresh     string            `env:"GOOGLE_REFRESH_TOKEN"`
	GoogleCalendars   map[string]string `env:"GOOGLE_CALENDARS" envSeparator:"," envKeyValSeparator:"="`

	// Speech, tools
	STTProvider   string `env:"STT_PROVIDER" envDefault:"yandex"`
	MCPServerPath string `env:"MCP_SERVER_PATH"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// New parses the environment. A malformed environment is a startup error.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ContextMessages <= 0 {
		return nil, fmt.Errorf("CONTEXT_MESSAGES must be positive, got %d", cfg.ContextMessages)
	}
	return cfg, nil
}

// Whitelist merges ALLOWED_USERS with the ids listed in WhitelistFile.
// The result is sorted and free of duplicates.
func (c *Config) Whitelist() ([]int64, error) {
	seen := make(map[int64]struct{}, len(c.AllowedUsers))
	for _, id := range c.AllowedUsers {
		seen[id] = struct{}{}
	}
	if c.WhitelistFile != "" {
		ids, err := LoadWhitelistFile(c.WhitelistFile)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type whitelistFile struct {
	Bot struct {
		Whitelist []any `yaml:"whitelist"`
	} `yaml:"bot"`
}

// LoadWhitelistFile reads a YAML document of the form
//
//	bot:
//	  whitelist: [123, "456"]
//
// Entries that are not decimal user ids are skipped.
func LoadWhitelistFile(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whitelist file: %w", err)
	}
	var wf whitelistFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse whitelist file: %w", err)
	}
	var out []int64
	for _, raw := range wf.Bot.Whitelist {
		s := strings.TrimSpace(fmt.Sprint(raw))
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// CalendarIDs maps GOOGLE_CALENDARS ("42=primary,43=team@group.calendar.google.com") to user ids.
func (c *Config) CalendarIDs() (map[int64]string, error) {
	out := make(map[int64]string, len(c.GoogleCalendars))
	for k, v := range c.GoogleCalendars {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q in GOOGLE_CALENDARS: %w", k, err)
		}
		out[id] = strings.TrimSpace(v)
	}
	return out, nil
}
