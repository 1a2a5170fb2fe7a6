// Package notifier polls calendar feeds for a fixed set of users and sends
// each of them a summary when their events change.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"topic-chatter/internal/calendar"
	"topic-chatter/internal/scheduler"
)

const (
	DefaultSystemPrompt = "Кратко перескажи пользователю изменения в его календаре."
	notificationHeader  = "Обновления в календаре:\n\n"
)

// Generator turns a change summary into the text sent to the user.
type Generator interface {
	Ask(ctx context.Context, userID int64, prompt string) (string, error)
}

type Sender interface {
	SendText(chatID int64, text string) error
}

type Notifier struct {
	users        []int64
	source       calendar.Source
	generator    Generator
	sender       Sender
	systemPrompt string
	schedule     cron.Schedule
	logger       *zap.Logger

	// pollMu serializes PollOnce; baseline is only touched under it.
	pollMu   sync.Mutex
	baseline map[int64]calendar.Snapshot

	deliveries sync.WaitGroup
	now        func() time.Time
}

type Option func(*Notifier)

func WithSystemPrompt(prompt string) Option {
	return func(n *Notifier) {
		if prompt != "" {
			n.systemPrompt = prompt
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New builds a notifier for a fixed list of users. The list is copied.
func New(users []int64, source calendar.Source, generator Generator, sender Sender, schedule cron.Schedule, opts ...Option) *Notifier {
	n := &Notifier{
		users:        append([]int64(nil), users...),
		source:       source,
		generator:    generator,
		sender:       sender,
		systemPrompt: DefaultSystemPrompt,
		schedule:     schedule,
		logger:       zap.NewNop(),
		baseline:     make(map[int64]calendar.Snapshot),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.Named("notifier")
	return n
}

// PollOnce runs one tick over every user. Deliveries are started in the
// background and never delay the next user.
func (n *Notifier) PollOnce(ctx context.Context) {
	n.pollMu.Lock()
	defer n.pollMu.Unlock()

	for _, userID := range n.users {
		if ctx.Err() != nil {
			return
		}
		n.pollUser(ctx, userID)
	}
}

func (n *Notifier) pollUser(ctx context.Context, userID int64) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("poll iteration panicked", zap.Int64("user_id", userID), zap.Any("panic", r))
		}
	}()

	current := n.source.FetchEvents(ctx, userID)
	diff := calendar.Compare(n.baseline[userID], current)
	if diff.Empty() {
		return
	}
	n.baseline[userID] = current
	n.logger.Info("calendar changed",
		zap.Int64("user_id", userID),
		zap.Int("added", len(diff.Added)),
		zap.Int("removed", len(diff.Removed)),
		zap.Int("modified", len(diff.Modified)),
	)

	// Deliveries are not cancelled with the loop.
	deliverCtx := context.WithoutCancel(ctx)
	n.deliveries.Add(1)
	go func() {
		defer n.deliveries.Done()
		n.deliver(deliverCtx, userID, diff)
	}()
}

func (n *Notifier) deliver(ctx context.Context, userID int64, diff calendar.Diff) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("notification panicked", zap.Int64("user_id", userID), zap.Any("panic", r))
		}
	}()

	prompt := n.systemPrompt + "\n\n" + FormatChanges(diff)
	answer, err := n.generator.Ask(ctx, userID, prompt)
	if err != nil {
		n.logger.Error("failed to compose notification", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := n.sender.SendText(userID, notificationHeader+answer); err != nil {
		n.logger.Error("failed to send notification", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	n.logger.Debug("notification sent", zap.Int64("user_id", userID))
}

// Run polls until ctx is cancelled, waiting for the schedule between ticks.
// Cancellation returns nil.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.Info("notification loop started", zap.Int("users", len(n.users)))
	for {
		n.PollOnce(ctx)
		if err := scheduler.Sleep(ctx, n.schedule, n.now()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				n.logger.Info("notification loop stopped")
				return nil
			}
			return fmt.Errorf("wait for next poll: %w", err)
		}
	}
}

// Wait blocks until every started delivery has finished.
func (n *Notifier) Wait() {
	n.deliveries.Wait()
}

// FormatChanges renders a diff as added, removed and modified sections.
// An empty diff renders as "".
func FormatChanges(diff calendar.Diff) string {
	var b strings.Builder
	section := func(label string, events []calendar.Event) {
		if len(events) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s: %d\n", label, len(events))
		for _, ev := range events {
			fmt.Fprintf(&b, "- %s (%s)\n", ev.Title, ev.StartDatetime)
		}
	}
	section("Added", diff.Added)
	section("Removed", diff.Removed)
	modified := make([]calendar.Event, 0, len(diff.Modified))
	for _, c := range diff.Modified {
		modified = append(modified, c.New)
	}
	section("Modified", modified)
	return strings.TrimSuffix(b.String(), "\n")
}
