// Time-boxed quarantine role for new members. Entries live in process memory only and are lost on restart.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hearth-social/warden/automod/enforce"
	"github.com/puzpuzpuz/xsync/v3"
)

type Entry struct {
	UserID      string        `json:"user_id"`
	CommunityID string        `json:"community_id"`
	RoleID      string        `json:"role_id"`
	JoinedAt    time.Time     `json:"joined_at"`
	Duration    time.Duration `json:"duration"`
}

func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.JoinedAt) >= e.Duration
}

type Service struct {
	Platform enforce.Platform
	Logger   *slog.Logger
	Clock    func() time.Time

	entries *xsync.MapOf[string, Entry]
}

func NewService(p enforce.Platform, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Platform: p,
		Logger:   logger.With("component", "quarantine"),
		Clock:    time.Now,
		entries:  xsync.NewMapOf[string, Entry](),
	}
}

func entryKey(communityID, userID string) string {
	return communityID + "/" + userID
}

// Records the entry and assigns the quarantine role. If the role cannot be assigned the entry is dropped again.
func (s *Service) Admit(ctx context.Context, communityID, userID, roleID string, duration time.Duration) error {
	e := Entry{
		UserID:      userID,
		CommunityID: communityID,
		RoleID:      roleID,
		JoinedAt:    s.Clock(),
		Duration:    duration,
	}
	s.entries.Store(entryKey(communityID, userID), e)
	if err := s.Platform.AddRole(ctx, communityID, userID, roleID); err != nil {
		s.entries.Delete(entryKey(communityID, userID))
		return fmt.Errorf("assigning quarantine role: %w", err)
	}
	quarantineAdmitted.Inc()
	s.Logger.Info("member quarantined", "community", communityID, "user", userID, "duration", duration)
	return nil
}

// Releases every expired entry. Members whose role removal fails stay quarantined until the next sweep; members who have left are dropped. Returns the number released.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.Clock()
	expired := []Entry{}
	s.entries.Range(func(k string, e Entry) bool {
		if e.Expired(now) {
			expired = append(expired, e)
		}
		return true
	})

	released := 0
	for _, e := range expired {
		if ctx.Err() != nil {
			break
		}
		err := s.Platform.RemoveRole(ctx, e.CommunityID, e.UserID, e.RoleID)
		if err != nil && !errors.Is(err, enforce.ErrNotFound) {
			s.Logger.Warn("failed to lift quarantine", "community", e.CommunityID, "user", e.UserID, "err", err)
			quarantineSweepFailures.Inc()
			continue
		}
		s.entries.Delete(entryKey(e.CommunityID, e.UserID))
		released++
	}
	if released > 0 {
		s.Logger.Info("quarantine sweep", "released", released, "pending", s.entries.Size())
	}
	return released
}

// Lifts a quarantine early. Returns false if the member was not quarantined.
func (s *Service) Remove(ctx context.Context, communityID, userID string) (bool, error) {
	e, ok := s.entries.Load(entryKey(communityID, userID))
	if !ok {
		return false, nil
	}
	err := s.Platform.RemoveRole(ctx, communityID, userID, e.RoleID)
	if err != nil && !errors.Is(err, enforce.ErrNotFound) {
		return true, err
	}
	s.entries.Delete(entryKey(communityID, userID))
	return true, nil
}

// Current entries for a community, oldest first.
func (s *Service) Pending(communityID string) []Entry {
	out := []Entry{}
	s.entries.Range(func(k string, e Entry) bool {
		if e.CommunityID == communityID {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Sweeps on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("quarantine sweeper shutting down", "pending", s.entries.Size())
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
