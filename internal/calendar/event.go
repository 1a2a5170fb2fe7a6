package calendar

import (
	"context"
	"strings"
)

type Event struct {
	UID           string `json:"uid"`
	Title         string `json:"title"`
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime"`
	Description   string `json:"description"`
}

// Snapshot is the set of a user's events at one poll, in feed order.
type Snapshot []Event

// Change pairs both versions of a modified event.
type Change struct {
	Old Event
	New Event
}

type Diff struct {
	Added    []Event
	Removed  []Event
	Modified []Change
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Source fetches the current events of a user. Failures are reported as
// an empty snapshot.
type Source interface {
	FetchEvents(ctx context.Context, userID int64) Snapshot
}

// sameFields compares the fields that define an event change, ignoring
// surrounding whitespace.
func sameFields(a, b Event) bool {
	return strings.TrimSpace(a.Title) == strings.TrimSpace(b.Title) &&
		strings.TrimSpace(a.StartDatetime) == strings.TrimSpace(b.StartDatetime) &&
		strings.TrimSpace(a.EndDatetime) == strings.TrimSpace(b.EndDatetime) &&
		strings.TrimSpace(a.Description) == strings.TrimSpace(b.Description)
}

// index keys events by uid keeping the order of first appearance; a later
// duplicate replaces the earlier value in place.
func index(s Snapshot) (map[string]Event, []string) {
	byUID := make(map[string]Event, len(s))
	order := make([]string, 0, len(s))
	for _, ev := range s {
		if _, seen := byUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		byUID[ev.UID] = ev
	}
	return byUID, order
}

// Compare partitions the uids of old and cur into added, removed and
// modified. Unchanged events appear in no bucket.
func Compare(old, cur Snapshot) Diff {
	oldByUID, oldOrder := index(old)
	curByUID, curOrder := index(cur)

	var d Diff
	for _, uid := range curOrder {
		ev := curByUID[uid]
		prev, ok := oldByUID[uid]
		switch {
		case !ok:
			d.Added = append(d.Added, ev)
		case !sameFields(prev, ev):
			d.Modified = append(d.Modified, Change{Old: prev, New: ev})
		}
	}
	for _, uid := range oldOrder {
		if _, ok := curByUID[uid]; !ok {
			d.Removed = append(d.Removed, oldByUID[uid])
		}
	}
	return d
}
