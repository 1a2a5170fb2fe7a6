// Package history gives message handlers read access to a user's current
// topic and its recent messages without exposing the dialog record.
package history

import (
	"topic-chatter/internal/dialog"
	"topic-chatter/internal/llm"
)

type Router struct {
	store  *dialog.Store
	window int
}

// NewRouter returns a router whose Context holds at most window messages.
func NewRouter(store *dialog.Store, window int) *Router {
	if window <= 0 {
		window = 15
	}
	return &Router{store: store, window: window}
}

func (r *Router) CurrentTopic(userID int64) string {
	return r.store.CurrentTopic(userID)
}

// Recent returns the last n messages of the current topic.
func (r *Router) Recent(userID int64, n int) ([]dialog.Message, error) {
	return r.store.LastMessages(userID, n, "")
}

// Context converts the last window messages of the current topic into
// model messages, oldest first.
func (r *Router) Context(userID int64) ([]llm.Message, error) {
	return r.TopicContext(userID, "")
}

// TopicContext is Context for a named topic; "" means the current one.
func (r *Router) TopicContext(userID int64, topic string) ([]llm.Message, error) {
	msgs, err := r.store.LastMessages(userID, r.window, topic)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role != dialog.RoleAssistant {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Text})
	}
	return out, nil
}
