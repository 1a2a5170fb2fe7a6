package main

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"topic-chatter/internal/calendar"
	"topic-chatter/internal/dialog"
	"topic-chatter/internal/storage"
)

type staticSource calendar.Snapshot

func (s staticSource) FetchEvents(context.Context, int64) calendar.Snapshot {
	return calendar.Snapshot(s)
}

func resultText(t *testing.T, res *mcp.CallToolResultFor[any]) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func newToolServer(t *testing.T, src calendar.Source) *toolServer {
	store := dialog.NewStore(storage.NewFileStore(t.TempDir()), nil)
	return &toolServer{source: src, store: store, logger: zap.NewNop()}
}

func TestUpcomingEvents(t *testing.T) {
	ts := newToolServer(t, staticSource{
		{UID: "a", Title: "Standup", StartDatetime: "10:00", EndDatetime: "10:15", Description: "daily"},
		{UID: "b", Title: "Lunch", StartDatetime: "13:00", EndDatetime: "14:00"},
	})
	res, err := ts.UpcomingEvents(context.Background(), nil, &mcp.CallToolParamsFor[EventsParams]{Arguments: EventsParams{UserID: 1}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "- Standup (10:00 - 10:15): daily\n- Lunch (13:00 - 14:00)", resultText(t, res))
}

func TestUpcomingEvents_NoFeed(t *testing.T) {
	ts := newToolServer(t, nil)
	res, err := ts.UpcomingEvents(context.Background(), nil, &mcp.CallToolParamsFor[EventsParams]{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestDialogTopics(t *testing.T) {
	ts := newToolServer(t, nil)
	ts.store.SetCurrentTopic(3, "travel")

	res, err := ts.DialogTopics(context.Background(), nil, &mcp.CallToolParamsFor[TopicsParams]{Arguments: TopicsParams{UserID: 3}})
	require.NoError(t, err)
	assert.Equal(t, "current: travel\ntopics: default, travel", resultText(t, res))
}
