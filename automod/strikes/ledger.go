package strikes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/enforce"
)

// What the escalation policy asks for after a strike is added. Action is ActionNone when the new count has no step configured.
type Escalation struct {
	Action   enforce.Action
	Duration time.Duration
	Reason   string
}

type Ledger struct {
	Store  Store
	Logger *slog.Logger
	Clock  func() time.Time
}

func NewLedger(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		Store:  store,
		Logger: logger.With("component", "strikes"),
		Clock:  time.Now,
	}
}

func (l *Ledger) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

// Returns active records which have not expired, flipping any which have.
func (l *Ledger) active(ctx context.Context, userID, communityID string) ([]StrikeRecord, error) {
	recs, err := l.Store.ListActive(ctx, userID, communityID)
	if err != nil {
		return nil, err
	}
	now := l.now()
	live := []StrikeRecord{}
	expired := []uint{}
	for _, r := range recs {
		if r.ExpiresAt.Before(now) {
			expired = append(expired, r.ID)
			continue
		}
		live = append(live, r)
	}
	if len(expired) > 0 {
		if err := l.Store.Deactivate(ctx, expired); err != nil {
			return nil, fmt.Errorf("expiring strikes: %w", err)
		}
		strikesExpired.Add(float64(len(expired)))
	}
	return live, nil
}

// Records a new strike and returns the resulting live count, along with the escalation the policy calls for.
func (l *Ledger) AddStrike(ctx context.Context, userID, communityID, moderatorID, reason string, policy config.StrikesConfig) (int, Escalation, error) {
	live, err := l.active(ctx, userID, communityID)
	if err != nil {
		return 0, Escalation{}, err
	}
	now := l.now()
	count := len(live) + 1
	rec := &StrikeRecord{
		UserID:      userID,
		CommunityID: communityID,
		StrikeCount: count,
		Reason:      reason,
		ModeratorID: moderatorID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(policy.Expiry()),
		Active:      true,
	}
	if err := l.Store.Insert(ctx, rec); err != nil {
		return 0, Escalation{}, fmt.Errorf("recording strike: %w", err)
	}
	strikesAdded.Inc()
	esc := Policy(count, policy)
	l.Logger.Info("strike added", "community", communityID, "user", userID, "count", count, "escalation", esc.Action)
	return count, esc, nil
}

// Live strike count for the pair.
func (l *Ledger) GetActiveStrikes(ctx context.Context, userID, communityID string) (int, error) {
	live, err := l.active(ctx, userID, communityID)
	if err != nil {
		return 0, err
	}
	return len(live), nil
}

// Live strike records for the pair, oldest first.
func (l *Ledger) ActiveRecords(ctx context.Context, userID, communityID string) ([]StrikeRecord, error) {
	return l.active(ctx, userID, communityID)
}

// Deactivates every live strike for the pair. Returns how many were cleared.
func (l *Ledger) Clear(ctx context.Context, userID, communityID string) (int, error) {
	n, err := l.Store.DeactivateAll(ctx, userID, communityID)
	if err != nil {
		return 0, err
	}
	l.Logger.Info("strikes cleared", "community", communityID, "user", userID, "count", n)
	return n, nil
}

// Every record ever added for the pair, active or not, newest first.
func (l *Ledger) History(ctx context.Context, userID, communityID string) ([]StrikeRecord, error) {
	return l.Store.List(ctx, userID, communityID)
}

// Escalation for a live strike count. Reaching strikes_to_ban always bans; below that the progressive_actions step for the exact count applies.
func Policy(count int, cfg config.StrikesConfig) Escalation {
	if cfg.StrikesToBan > 0 && count >= cfg.StrikesToBan {
		return Escalation{
			Action: enforce.ActionBan,
			Reason: fmt.Sprintf("reached %d strikes", count),
		}
	}
	switch cfg.ProgressiveActions[count] {
	case enforce.ActionWarn:
		return Escalation{
			Action: enforce.ActionWarn,
			Reason: fmt.Sprintf("strike %d of %d", count, cfg.StrikesToBan),
		}
	case enforce.ActionTimeout:
		return Escalation{
			Action:   enforce.ActionTimeout,
			Duration: enforce.StrikeTimeout,
			Reason:   fmt.Sprintf("strike %d of %d", count, cfg.StrikesToBan),
		}
	case enforce.ActionKick:
		return Escalation{
			Action: enforce.ActionKick,
			Reason: fmt.Sprintf("strike %d of %d", count, cfg.StrikesToBan),
		}
	}
	return Escalation{Action: enforce.ActionNone}
}
