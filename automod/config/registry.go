package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Holds the single live config reference for each community.
//
// Readers get a pointer which is never mutated afterwards. Updates clone the current document, apply the change, validate, persist, and then swap the pointer, so a reader mid-event keeps a consistent snapshot.
type Registry struct {
	Store  Store
	Logger *slog.Logger

	configs *xsync.MapOf[string, *ModerationConfig]
	// serializes updates; reads never take it
	updateLk sync.Mutex
}

func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		Store:   store,
		Logger:  logger.With("component", "config"),
		configs: xsync.NewMapOf[string, *ModerationConfig](),
	}
}

// Returns the live config for a community, loading it on first use. A community with no stored document gets the defaults (every detector disabled).
func (r *Registry) Get(ctx context.Context, communityID string) (*ModerationConfig, error) {
	if c, ok := r.configs.Load(communityID); ok {
		return c, nil
	}
	c, err := r.Store.Load(ctx, communityID)
	if errors.Is(err, ErrConfigMissing) {
		c = Default(communityID)
	} else if err != nil {
		return nil, fmt.Errorf("loading config for %q: %w", communityID, err)
	}
	actual, _ := r.configs.LoadOrStore(communityID, c)
	return actual, nil
}

// Applies fn to a copy of the current config, then validates, persists, and publishes the result.
func (r *Registry) Update(ctx context.Context, communityID string, fn func(c *ModerationConfig) error) (*ModerationConfig, error) {
	r.updateLk.Lock()
	defer r.updateLk.Unlock()

	cur, err := r.Get(ctx, communityID)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.CommunityID = communityID
	if err := r.publish(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Replaces the whole document for a community.
func (r *Registry) Replace(ctx context.Context, cfg *ModerationConfig) error {
	r.updateLk.Lock()
	defer r.updateLk.Unlock()
	return r.publish(ctx, cfg.Clone())
}

func (r *Registry) publish(ctx context.Context, c *ModerationConfig) error {
	c.normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.Store.Save(ctx, c); err != nil {
		return fmt.Errorf("saving config for %q: %w", c.CommunityID, err)
	}
	r.configs.Store(c.CommunityID, c)
	r.Logger.Info("moderation config updated", "community", c.CommunityID)
	return nil
}

// Drops the cached reference; the next Get reloads from the store.
func (r *Registry) Forget(communityID string) {
	r.configs.Delete(communityID)
}

// Sets a detector section's enabled flag by its document key (eg, "anti_spam").
func SetEnabled(c *ModerationConfig, detector string, enabled bool) error {
	switch detector {
	case "quarantine":
		c.Quarantine.Enabled = enabled
	case "anti_spam":
		c.AntiSpam.Enabled = enabled
	case "anti_raid":
		c.AntiRaid.Enabled = enabled
	case "link_filter":
		c.LinkFilter.Enabled = enabled
	case "mention_spam":
		c.MentionSpam.Enabled = enabled
	case "auto_slowmode":
		c.AutoSlowmode.Enabled = enabled
	case "word_filter":
		c.WordFilter.Enabled = enabled
	case "nsfw_detection":
		c.NSFWDetection.Enabled = enabled
	case "strikes_system":
		c.StrikesSystem.Enabled = enabled
	case "role_backup":
		c.RoleBackup.Enabled = enabled
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDetector, detector)
	}
	return nil
}

var ErrUnknownDetector = errors.New("unknown detector")
