package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// HTTPSource reads events from GET <base>?api_key=<key>&user_id=<id>.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPSource(baseURL, apiKey string, client *http.Client, logger *zap.Logger) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSource{baseURL: baseURL, apiKey: apiKey, client: client, logger: logger.Named("feed")}
}

type feedResponse struct {
	Events []Event `json:"events"`
}

func (s *HTTPSource) FetchEvents(ctx context.Context, userID int64) Snapshot {
	events, err := s.fetch(ctx, userID)
	if err != nil {
		s.logger.Error("failed to fetch events", zap.Int64("user_id", userID), zap.Error(err))
		return Snapshot{}
	}
	return events
}

func (s *HTTPSource) fetch(ctx context.Context, userID int64) (Snapshot, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", s.apiKey)
	q.Set("user_id", strconv.FormatInt(userID, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	s.logger.Debug("fetching events", zap.Int64("user_id", userID))
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if body.Events == nil {
		return Snapshot{}, nil
	}
	return Snapshot(body.Events), nil
}
