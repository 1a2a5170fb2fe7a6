package calendar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const googleMaxResults = 250

// eventLister is the part of the Calendar API the source needs.
type eventLister interface {
	List(ctx context.Context, calendarID string, from time.Time) ([]*gcal.Event, error)
}

// GoogleSource reads upcoming events from Google Calendar. Each polled
// user is mapped to one calendar id.
type GoogleSource struct {
	events    eventLister
	calendars map[int64]string
	now       func() time.Time
	logger    *zap.Logger
}

// NewGoogleSource authorizes with an installed-app credentials JSON and a
// refresh token obtained out of band.
func NewGoogleSource(ctx context.Context, credentialsJSON, refreshToken string, calendars map[int64]string, logger *zap.Logger) (*GoogleSource, error) {
	cfg, err := google.ConfigFromJSON([]byte(credentialsJSON), gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	httpClient := cfg.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return newGoogleSource(apiLister{svc: svc}, calendars, logger), nil
}

func newGoogleSource(events eventLister, calendars map[int64]string, logger *zap.Logger) *GoogleSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleSource{
		events:    events,
		calendars: calendars,
		now:       time.Now,
		logger:    logger.Named("google_feed"),
	}
}

func (s *GoogleSource) FetchEvents(ctx context.Context, userID int64) Snapshot {
	calID, ok := s.calendars[userID]
	if !ok {
		s.logger.Warn("no calendar configured", zap.Int64("user_id", userID))
		return Snapshot{}
	}
	items, err := s.events.List(ctx, calID, startOfDay(s.now()))
	if err != nil {
		s.logger.Error("failed to fetch events", zap.Int64("user_id", userID), zap.String("calendar", calID), zap.Error(err))
		return Snapshot{}
	}
	out := make(Snapshot, 0, len(items))
	for _, it := range items {
		if it == nil || it.Status == "cancelled" {
			continue
		}
		out = append(out, Event{
			UID:           it.Id,
			Title:         it.Summary,
			StartDatetime: eventTime(it.Start),
			EndDatetime:   eventTime(it.End),
			Description:   it.Description,
		})
	}
	return out
}

// startOfDay anchors the query window so events already under way today
// stay in the snapshot instead of showing up as removed.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// eventTime prefers the timed form; all-day events only carry a date.
func eventTime(t *gcal.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

type apiLister struct{ svc *gcal.Service }

func (l apiLister) List(ctx context.Context, calendarID string, from time.Time) ([]*gcal.Event, error) {
	resp, err := l.svc.Events.List(calendarID).
		Context(ctx).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(googleMaxResults).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}
