package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeechKit_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Api-Key key", r.Header.Get("Authorization"))
		assert.Equal(t, "folder", r.URL.Query().Get("folderId"))
		assert.Equal(t, "oggopus", r.URL.Query().Get("format"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "OggS", string(body))
		_, _ = w.Write([]byte(`{"result":"привет"}`))
	}))
	defer srv.Close()

	sk := NewSpeechKit("key", "folder")
	sk.endpoint = srv.URL
	text, err := sk.Recognize(context.Background(), []byte("OggS"), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "привет", text)
}

func TestSpeechKit_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_code":"UNAUTHORIZED","error_message":"bad key"}`))
	}))
	defer srv.Close()

	sk := NewSpeechKit("key", "folder")
	sk.endpoint = srv.URL
	_, err := sk.Recognize(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestWhisper_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, openai.Whisper1, r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test")
	cfg.BaseURL = srv.URL + "/v1"
	text, err := NewWhisper(cfg).Recognize(context.Background(), []byte("OggS"), "")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}
