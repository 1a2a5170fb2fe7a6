package dialog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"topic-chatter/internal/storage"
)

// Store is the per-user dialog record. Every operation loads the record,
// mutates it and writes it back in full; a per-user lock keeps those
// cycles from interleaving for the same user.
type Store struct {
	backend storage.Backend
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(backend storage.Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		logger:  logger.Named("dialog"),
		locks:   make(map[int64]*userLock),
	}
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// lock serializes operations for one user. The entry is dropped once no
// caller holds or waits for it.
func (s *Store) lock(userID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

// Load never fails: a missing or unreadable record yields the default dialog.
func (s *Store) Load(userID int64) *UserDialog {
	data, ok, err := s.backend.Get(key(userID))
	if err != nil {
		s.logger.Error("failed to read dialog", zap.Int64("user_id", userID), zap.Error(err))
		return New()
	}
	if !ok {
		return New()
	}
	d, err := decode(data)
	if err != nil {
		s.logger.Error("failed to parse dialog", zap.Int64("user_id", userID), zap.Error(err))
		return New()
	}
	return d
}

func decode(data []byte) (*UserDialog, error) {
	var d UserDialog
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	d.normalize()
	return &d, nil
}

// Save persists the whole dialog. The error is logged here already;
// callers that do not care may ignore it.
func (s *Store) Save(userID int64, d *UserDialog) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err == nil {
		err = s.backend.Put(key(userID), data)
	}
	if err != nil {
		s.logger.Error("failed to save dialog", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("save dialog %d: %w", userID, err)
	}
	return nil
}

// AddMessage appends msg to topic, or to the current topic when topic is
// empty. The current topic is left unchanged.
func (s *Store) AddMessage(userID int64, msg Message, topic string) {
	unlock := s.lock(userID)
	defer unlock()

	d := s.Load(userID)
	if topic == "" {
		topic = d.CurrentTopic
	}
	t := d.ensure(topic)
	t.Messages = append(t.Messages, msg)
	_ = s.Save(userID, d)
}

// SetCurrentTopic selects topic, creating it when needed. An empty topic
// resets the selection to the default topic and reports all topic names.
func (s *Store) SetCurrentTopic(userID int64, topic string) TopicSelection {
	unlock := s.lock(userID)
	defer unlock()

	d := s.Load(userID)
	if topic == "" {
		d.CurrentTopic = DefaultTopic
		_ = s.Save(userID, d)
		return TopicSelection{Kind: SelectionReset, Topic: DefaultTopic, Topics: d.TopicNames()}
	}
	d.CurrentTopic = topic
	d.ensure(topic)
	_ = s.Save(userID, d)
	return TopicSelection{
		Kind:    SelectionSelected,
		Topic:   topic,
		Message: "Текущая тема установлена: " + topic,
	}
}

// LastMessages returns up to count most recent messages of topic (the
// current topic when empty) in chronological order. An unknown topic falls
// back to the default one. Nothing is written.
func (s *Store) LastMessages(userID int64, count int, topic string) ([]Message, error) {
	if count <= 0 {
		return nil, fmt.Errorf("message count must be positive, got %d", count)
	}
	d := s.Load(userID)
	if topic == "" {
		topic = d.CurrentTopic
	}
	t, ok := d.Topics[topic]
	if !ok {
		t = d.ensure(DefaultTopic)
	}
	msgs := t.Messages
	if len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SetTopicIndex records the search index of topic, keeping its messages.
func (s *Store) SetTopicIndex(userID int64, topic, indexID string) {
	unlock := s.lock(userID)
	defer unlock()

	d := s.Load(userID)
	d.ensure(topic).IndexID = indexID
	_ = s.Save(userID, d)
}

func (s *Store) CurrentTopic(userID int64) string {
	return s.Load(userID).CurrentTopic
}

func (s *Store) TopicNames(userID int64) []string {
	return s.Load(userID).TopicNames()
}

// TopicIndex returns the index id of topic (current topic when empty).
func (s *Store) TopicIndex(userID int64, topic string) string {
	d := s.Load(userID)
	if topic == "" {
		topic = d.CurrentTopic
	}
	if t, ok := d.Topics[topic]; ok {
		return t.IndexID
	}
	return ""
}

// Users lists the ids of every stored dialog.
func (s *Store) Users() ([]int64, error) {
	keys, err := s.backend.Keys()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			s.logger.Warn("skipping foreign record", zap.String("key", k))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Migrate rewrites the record of userID in the current layout. Unlike
// Load it refuses to replace a record it cannot parse.
func (s *Store) Migrate(userID int64) error {
	unlock := s.lock(userID)
	defer unlock()

	data, ok, err := s.backend.Get(key(userID))
	if err != nil {
		return fmt.Errorf("read dialog %d: %w", userID, err)
	}
	if !ok {
		return nil
	}
	d, err := decode(data)
	if err != nil {
		return fmt.Errorf("parse dialog %d: %w", userID, err)
	}
	return s.Save(userID, d)
}
