package audit

import (
	"context"
	"sync"
)

// Keeps every record in memory. Used in tests and by the operator API's recent history view.
type MemSink struct {
	lk      sync.Mutex
	Records []Record
}

func (s *MemSink) Emit(ctx context.Context, rec Record) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.Records = append(s.Records, rec)
	return nil
}

// Copy of the records emitted so far, optionally filtered by detector.
func (s *MemSink) Snapshot(detector string) []Record {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := []Record{}
	for _, r := range s.Records {
		if detector == "" || r.Detector == detector {
			out = append(out, r)
		}
	}
	return out
}
