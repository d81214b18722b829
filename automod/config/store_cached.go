package config

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/hearth-social/warden/automod/cachestore"
)

const cacheName = "moderation-config"

// Read-through cache in front of another Store. Saves write through and refresh the cache.
type CachedStore struct {
	Inner Store
	Cache cachestore.CacheStore
}

func (s *CachedStore) Load(ctx context.Context, communityID string) (*ModerationConfig, error) {
	raw, ok, err := s.Cache.Get(ctx, cacheName, communityID)
	if err == nil && ok {
		if c, err := DecodeJSON(communityID, []byte(raw)); err == nil {
			return c, nil
		}
	}
	c, err := s.Inner.Load(ctx, communityID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, c)
	return c, nil
}

func (s *CachedStore) Save(ctx context.Context, cfg *ModerationConfig) error {
	if err := s.Inner.Save(ctx, cfg); err != nil {
		return err
	}
	s.fill(ctx, cfg)
	return nil
}

func (s *CachedStore) fill(ctx context.Context, cfg *ModerationConfig) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	// cache errors are not fatal; the next load goes to the inner store
	_ = s.Cache.Set(ctx, cacheName, cfg.CommunityID, string(b))
}
