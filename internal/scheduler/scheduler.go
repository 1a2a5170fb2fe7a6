// Package scheduler decides when the next calendar poll runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNoActivation is returned for a schedule that never fires again.
var ErrNoActivation = errors.New("schedule has no next activation")

// Parse returns a standard five-field cron schedule when expr is set and a
// fixed-interval schedule otherwise. Expressions that can never fire, such
// as "0 0 30 2 *", are rejected.
func Parse(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parse poll schedule %q: %w", expr, err)
		}
		if sched.Next(time.Now()).IsZero() {
			return nil, fmt.Errorf("poll schedule %q: %w", expr, ErrNoActivation)
		}
		return sched, nil
	}
	if interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	// cron.Every truncates to whole seconds.
	if interval%time.Second != 0 {
		return Interval(interval), nil
	}
	return cron.Every(interval), nil
}

// Sleep blocks until the next activation of sched after now. It returns
// ctx.Err() when the context ends first and ErrNoActivation when sched
// will not fire again.
func Sleep(ctx context.Context, sched cron.Schedule, now time.Time) error {
	next := sched.Next(now)
	if next.IsZero() {
		return ErrNoActivation
	}
	wait := next.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval is a schedule that fires every d with no rounding, unlike
// cron.Every which truncates to whole seconds.
type Interval time.Duration

func (i Interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}
