package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topic-chatter/internal/dialog"
	"topic-chatter/internal/llm"
	"topic-chatter/internal/storage"
)

func TestRouter_ContextFollowsCurrentTopic(t *testing.T) {
	store := dialog.NewStore(storage.NewFileStore(t.TempDir()), nil)
	r := NewRouter(store, 2)

	store.AddMessage(1, dialog.Message{Role: dialog.RoleUser, Text: "old"}, "")
	store.SetCurrentTopic(1, "work")
	for i := 0; i < 3; i++ {
		store.AddMessage(1, dialog.Message{Role: dialog.RoleUser, Text: fmt.Sprintf("q%d", i)}, "")
		store.AddMessage(1, dialog.Message{Role: dialog.RoleAssistant, Text: fmt.Sprintf("a%d", i)}, "")
	}

	assert.Equal(t, "work", r.CurrentTopic(1))
	ctx, err := r.Context(1)
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "q2"},
		{Role: llm.RoleAssistant, Content: "a2"},
	}, ctx)

	recent, err := r.Recent(1, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 6)
}

func TestRouter_TopicContextIgnoresLaterSwitch(t *testing.T) {
	store := dialog.NewStore(storage.NewFileStore(t.TempDir()), nil)
	r := NewRouter(store, 5)

	store.AddMessage(1, dialog.Message{Role: dialog.RoleUser, Text: "old"}, "")
	store.SetCurrentTopic(1, "work")
	store.AddMessage(1, dialog.Message{Role: dialog.RoleUser, Text: "task"}, "")

	ctx, err := r.TopicContext(1, dialog.DefaultTopic)
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "old"}}, ctx)

	ctx, err = r.TopicContext(1, "")
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "task"}}, ctx)
}

func TestRouter_EmptyDialog(t *testing.T) {
	r := NewRouter(dialog.NewStore(storage.NewFileStore(t.TempDir()), nil), 0)
	ctx, err := r.Context(5)
	require.NoError(t, err)
	assert.Empty(t, ctx)
	assert.Equal(t, dialog.DefaultTopic, r.CurrentTopic(5))
}
