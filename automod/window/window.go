package window

import (
	"context"
	"time"
)

// A single timestamped observation in a sliding window.
//
// "Member" identifies who caused the event (eg, the joining user for raid windows) and "Value" is an optional payload (eg, a content hash for duplicate detection).
type Entry struct {
	At     time.Time `json:"at"`
	Member string    `json:"member,omitempty"`
	Value  string    `json:"value,omitempty"`
}

// Sliding time-window tracker, keyed by a namespace ("name") and an identity ("key") within that namespace.
//
// Every method first discards entries older than the caller-supplied window, relative to the supplied time. Callers must apply Record before any network call for the same key, so that concurrent readers never observe a stale count.
type WindowStore interface {
	// Prunes, appends the entry, and returns the number of entries now in the window.
	Record(ctx context.Context, name, key string, e Entry, window time.Duration) (int, error)
	Count(ctx context.Context, name, key string, now time.Time, window time.Duration) (int, error)
	// Returns a copy of all in-window entries, oldest first.
	Entries(ctx context.Context, name, key string, now time.Time, window time.Duration) ([]Entry, error)
	Reset(ctx context.Context, name, key string) error
}

func windowKey(name, key string) string {
	return name + "/" + key
}

// removes all entries older than cutoff. entries must be sorted oldest first.
func prune(entries []Entry, cutoff time.Time) []Entry {
	i := 0
	for i < len(entries) && entries[i].At.Before(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append(entries[:0], entries[i:]...)
}
