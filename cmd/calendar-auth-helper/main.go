// Command calendar-auth-helper obtains the refresh token used by the
// Google Calendar feed (GOOGLE_REFRESH_TOKEN).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

type clientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type credentialsFile struct {
	Installed *clientCredentials `json:"installed,omitempty"`
	Web       *clientCredentials `json:"web,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: calendar-auth-helper <credentials.json>")
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read credentials file: %v", err)
	}
	if err := run(context.Background(), data, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, credentials []byte, in io.Reader, out io.Writer) error {
	cfg, err := oauthConfig(credentials)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "1. Open this URL in your browser:\n   %s\n\n", cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline))
	fmt.Fprint(out, "2. Paste the authorization code: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("empty authorization code")
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return errors.New("no refresh token returned; revoke the app's access and retry")
	}
	fmt.Fprintf(out, "\nAdd to .env:\n\nGOOGLE_CREDENTIALS_JSON='%s'\nGOOGLE_REFRESH_TOKEN='%s'\n",
		strings.TrimSpace(string(credentials)), token.RefreshToken)
	return nil
}

// oauthConfig accepts the Cloud Console download (installed or web) and a
// bare {"client_id", "client_secret"} object.
func oauthConfig(data []byte) (*oauth2.Config, error) {
	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if file.Installed != nil || file.Web != nil {
		cfg, err := google.ConfigFromJSON(data, gcal.CalendarReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		cfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
		return cfg, nil
	}

	var direct clientCredentials
	if err := json.Unmarshal(data, &direct); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if direct.ClientID == "" || direct.ClientSecret == "" {
		return nil, errors.New("no client credentials found: expected an 'installed' or 'web' section")
	}
	return &oauth2.Config{
		ClientID:     direct.ClientID,
		ClientSecret: direct.ClientSecret,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{gcal.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}, nil
}
