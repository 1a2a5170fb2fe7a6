package dialog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultTopic always exists in every dialog.
const DefaultTopic = "default"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts records that stored the body under "content".
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string  `json:"role"`
		Text    *string `json:"text"`
		Content string  `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	if raw.Text != nil {
		m.Text = *raw.Text
	} else {
		m.Text = raw.Content
	}
	return nil
}

type TopicRecord struct {
	Messages []Message `json:"messages"`
	IndexID  string    `json:"index_id,omitempty"`
}

// UnmarshalJSON migrates the legacy layout where a topic was stored as a
// bare array of messages.
func (t *TopicRecord) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return fmt.Errorf("legacy topic: %w", err)
		}
		*t = TopicRecord{Messages: msgs}
	} else {
		type plain TopicRecord
		var p plain
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return err
		}
		*t = TopicRecord(p)
	}
	if t.Messages == nil {
		t.Messages = []Message{}
	}
	return nil
}

type UserDialog struct {
	CurrentTopic string                  `json:"current_topic"`
	Topics       map[string]*TopicRecord `json:"topics"`
}

// New returns the structure of a user without any stored record.
func New() *UserDialog {
	return &UserDialog{
		CurrentTopic: DefaultTopic,
		Topics:       map[string]*TopicRecord{DefaultTopic: emptyTopic()},
	}
}

func emptyTopic() *TopicRecord {
	return &TopicRecord{Messages: []Message{}}
}

// normalize restores the invariants: the default topic and the current
// topic both exist and nothing is nil.
func (d *UserDialog) normalize() {
	if d.Topics == nil {
		d.Topics = make(map[string]*TopicRecord)
	}
	for name, t := range d.Topics {
		if t == nil {
			d.Topics[name] = emptyTopic()
		}
	}
	if d.CurrentTopic == "" {
		d.CurrentTopic = DefaultTopic
	}
	d.ensure(d.CurrentTopic)
	d.ensure(DefaultTopic)
}

// ensure returns the named topic, creating it empty when absent.
func (d *UserDialog) ensure(name string) *TopicRecord {
	t, ok := d.Topics[name]
	if !ok || t == nil {
		t = emptyTopic()
		d.Topics[name] = t
	}
	return t
}

// TopicNames lists topics with the default topic first, the rest sorted.
func (d *UserDialog) TopicNames() []string {
	names := make([]string, 0, len(d.Topics))
	for name := range d.Topics {
		if name != DefaultTopic {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := d.Topics[DefaultTopic]; ok {
		names = append([]string{DefaultTopic}, names...)
	}
	return names
}

type SelectionKind int

const (
	// SelectionReset: the current topic went back to default; Topics holds every topic name.
	SelectionReset SelectionKind = iota
	// SelectionSelected: the named topic is now current; Message confirms it.
	SelectionSelected
)

// TopicSelection is the result of Store.SetCurrentTopic.
type TopicSelection struct {
	Kind    SelectionKind
	Topic   string
	Topics  []string
	Message string
}
