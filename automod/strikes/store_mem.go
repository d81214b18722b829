package strikes

import (
	"context"
	"slices"
	"sync"
)

type MemStore struct {
	lk      sync.Mutex
	nextID  uint
	records []StrikeRecord
}

func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

func (s *MemStore) Insert(ctx context.Context, rec *StrikeRecord) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemStore) ListActive(ctx context.Context, userID, communityID string) ([]StrikeRecord, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := []StrikeRecord{}
	for _, r := range s.records {
		if r.UserID == userID && r.CommunityID == communityID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemStore) Deactivate(ctx context.Context, ids []uint) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	for i := range s.records {
		if slices.Contains(ids, s.records[i].ID) {
			s.records[i].Active = false
		}
	}
	return nil
}

func (s *MemStore) DeactivateAll(ctx context.Context, userID, communityID string) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	n := 0
	for i, r := range s.records {
		if r.UserID == userID && r.CommunityID == communityID && r.Active {
			s.records[i].Active = false
			n++
		}
	}
	return n, nil
}

func (s *MemStore) List(ctx context.Context, userID, communityID string) ([]StrikeRecord, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := []StrikeRecord{}
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.UserID == userID && r.CommunityID == communityID {
			out = append(out, r)
		}
	}
	return out, nil
}
