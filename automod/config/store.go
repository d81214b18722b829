package config

import (
	"context"
	"errors"
	"sync"
)

// Returned by a Store when no document has been saved for a community.
var ErrConfigMissing = errors.New("moderation config missing")

// Persistence for moderation config documents.
type Store interface {
	Load(ctx context.Context, communityID string) (*ModerationConfig, error)
	Save(ctx context.Context, cfg *ModerationConfig) error
}

type MemStore struct {
	lk   sync.Mutex
	docs map[string]*ModerationConfig
}

func NewMemStore() *MemStore {
	return &MemStore{
		docs: make(map[string]*ModerationConfig),
	}
}

func (s *MemStore) Load(ctx context.Context, communityID string) (*ModerationConfig, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	c, ok := s.docs[communityID]
	if !ok {
		return nil, ErrConfigMissing
	}
	return c.Clone(), nil
}

func (s *MemStore) Save(ctx context.Context, cfg *ModerationConfig) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.docs[cfg.CommunityID] = cfg.Clone()
	return nil
}
