package window

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type memWindow struct {
	lk       sync.Mutex
	entries  []Entry
	lastSeen time.Time
}

// In-process WindowStore. Safe for concurrent use; each window carries its own lock, and the key map is a concurrent map.
type MemWindowStore struct {
	windows *xsync.MapOf[string, *memWindow]
}

var _ WindowStore = (*MemWindowStore)(nil)

func NewMemWindowStore() *MemWindowStore {
	return &MemWindowStore{
		windows: xsync.NewMapOf[string, *memWindow](),
	}
}

func (s *MemWindowStore) getOrCreate(name, key string) *memWindow {
	w, _ := s.windows.LoadOrCompute(windowKey(name, key), func() *memWindow {
		return &memWindow{}
	})
	return w
}

func (s *MemWindowStore) Record(ctx context.Context, name, key string, e Entry, window time.Duration) (int, error) {
	w := s.getOrCreate(name, key)
	w.lk.Lock()
	defer w.lk.Unlock()

	w.entries = prune(w.entries, e.At.Add(-window))
	// events can arrive slightly out of order; keep the slice sorted
	idx := sort.Search(len(w.entries), func(i int) bool { return w.entries[i].At.After(e.At) })
	w.entries = append(w.entries, Entry{})
	copy(w.entries[idx+1:], w.entries[idx:])
	w.entries[idx] = e
	if e.At.After(w.lastSeen) {
		w.lastSeen = e.At
	}
	return len(w.entries), nil
}

func (s *MemWindowStore) Count(ctx context.Context, name, key string, now time.Time, window time.Duration) (int, error) {
	w, ok := s.windows.Load(windowKey(name, key))
	if !ok {
		return 0, nil
	}
	w.lk.Lock()
	defer w.lk.Unlock()
	w.entries = prune(w.entries, now.Add(-window))
	return len(w.entries), nil
}

func (s *MemWindowStore) Entries(ctx context.Context, name, key string, now time.Time, window time.Duration) ([]Entry, error) {
	w, ok := s.windows.Load(windowKey(name, key))
	if !ok {
		return []Entry{}, nil
	}
	w.lk.Lock()
	defer w.lk.Unlock()
	w.entries = prune(w.entries, now.Add(-window))
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out, nil
}

func (s *MemWindowStore) Reset(ctx context.Context, name, key string) error {
	w, ok := s.windows.Load(windowKey(name, key))
	if !ok {
		return nil
	}
	w.lk.Lock()
	w.entries = nil
	w.lk.Unlock()
	return nil
}

// Discards whole windows which have not seen a new entry since "cutoff". Returns the number of windows dropped.
//
// Intended to be called from a periodic sweep; a window which is recorded to concurrently is simply re-created on the next Record.
func (s *MemWindowStore) DropIdle(cutoff time.Time) int {
	dropped := 0
	s.windows.Range(func(k string, w *memWindow) bool {
		w.lk.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.lk.Unlock()
		if idle {
			s.windows.Delete(k)
			dropped++
		}
		return true
	})
	return dropped
}

// Number of windows currently held in memory.
func (s *MemWindowStore) Size() int {
	return s.windows.Size()
}
