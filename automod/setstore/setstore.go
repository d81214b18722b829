package setstore

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
)

// Well-known set names used by the detectors.
const (
	SetPhishingDomains = "phishing-domains"
)

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
}

// Simple in-process set store. Values are compared case-insensitively.
type MemSetStore struct {
	lk   sync.RWMutex
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	set, ok := s.Sets[name]
	if !ok {
		// NOTE: currently returns false when entire set isn't found
		return false, nil
	}
	_, ok = set[strings.ToLower(val)]
	return ok, nil
}

// Adds values to the named set, creating it if needed.
func (s *MemSetStore) Add(name string, vals ...string) {
	s.lk.Lock()
	defer s.lk.Unlock()
	set, ok := s.Sets[name]
	if !ok {
		set = make(map[string]bool, len(vals))
		s.Sets[name] = set
	}
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
}

func (s *MemSetStore) Size(name string) int {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return len(s.Sets[name])
}

// Loads sets from a JSON file with the structure `{"set-name": ["val1", "val2"]}`. Sets present in the file replace any existing set of the same name.
func (s *MemSetStore) LoadFromFileJSON(p string) error {

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return err
	}

	s.lk.Lock()
	for name := range sets {
		delete(s.Sets, name)
	}
	s.lk.Unlock()
	for name, l := range sets {
		s.Add(name, l...)
	}
	return nil
}
