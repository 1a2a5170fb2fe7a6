package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
)

func TestOAuthConfig(t *testing.T) {
	installed := `{"installed":{"client_id":"id1","client_secret":"s1","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	cfg, err := oauthConfig([]byte(installed))
	require.NoError(t, err)
	assert.Equal(t, "id1", cfg.ClientID)
	assert.Equal(t, []string{gcal.CalendarReadonlyScope}, cfg.Scopes)

	cfg, err = oauthConfig([]byte(`{"client_id":"id2","client_secret":"s2"}`))
	require.NoError(t, err)
	assert.Equal(t, "id2", cfg.ClientID)
	assert.Equal(t, []string{gcal.CalendarReadonlyScope}, cfg.Scopes)

	_, err = oauthConfig([]byte(`{"client_id":"only"}`))
	assert.Error(t, err)
	_, err = oauthConfig([]byte(`nope`))
	assert.Error(t, err)
}

func TestRun_EmptyCode(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []byte(`{"client_id":"id","client_secret":"s"}`), strings.NewReader("\n"), &out)
	assert.EqualError(t, err, "empty authorization code")
	assert.Contains(t, out.String(), "https://accounts.google.com/")
}
