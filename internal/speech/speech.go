// Package speech converts voice messages to text.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, filename string) (string, error)
}

const speechKitURL = "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"

// SpeechKit is the Yandex Cloud short-audio recognizer. It expects OGG/Opus,
// which is what Telegram voice notes are.
type SpeechKit struct {
	apiKey   string
	folderID string
	endpoint string
	client   *http.Client
}

func NewSpeechKit(apiKey, folderID string) *SpeechKit {
	return &SpeechKit{
		apiKey:   apiKey,
		folderID: folderID,
		endpoint: speechKitURL,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type speechKitResponse struct {
	Result       string `json:"result"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (s *SpeechKit) Recognize(ctx context.Context, audio []byte, _ string) (string, error) {
	q := url.Values{}
	q.Set("folderId", s.folderID)
	q.Set("lang", "ru-RU")
	q.Set("format", "oggopus")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build speechkit request: %w", err)
	}
	req.Header.Set("Authorization", "Api-Key "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speechkit request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read speechkit response: %w", err)
	}

	var out speechKitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode speechkit response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speechkit status %d: %s %s", resp.StatusCode, out.ErrorCode, out.ErrorMessage)
	}
	return out.Result, nil
}

// Whisper transcribes through the OpenAI audio API.
type Whisper struct {
	client *openai.Client
	model  string
}

func NewWhisper(cfg openai.ClientConfig) *Whisper {
	return &Whisper{client: openai.NewClientWithConfig(cfg), model: openai.Whisper1}
}

func (w *Whisper) Recognize(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "voice.ogg"
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: "ru",
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return resp.Text, nil
}
