package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hearth-social/warden/automod/audit"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/hearth-social/warden/automod/strikes"
)

// messages removed alongside a ban
const banHistoryDays = 1

// Applies everything rules asked for. Failures are logged per effect and never abort the remaining effects.
func (eng *Engine) persistEffects(ctx context.Context, c *BaseContext) {
	eff := c.effects
	for _, sm := range eff.Slowmode {
		eng.persistSlowmode(ctx, c, sm)
	}
	for _, v := range eff.Verdicts {
		eng.persistVerdict(ctx, c, v)
	}
	if eff.QuarantineRoleID != "" && eng.Quarantine != nil {
		err := eng.Quarantine.Admit(ctx, c.subject.communityID, c.subject.userID, eff.QuarantineRoleID, eff.QuarantineDuration)
		if err != nil {
			c.Logger.Warn("failed to quarantine member", "err", err)
		}
	}
	if eff.RestoreRoles && eng.Backups != nil {
		applied, err := eng.Backups.Restore(ctx, c.subject.communityID, c.subject.userID)
		if err != nil {
			c.Logger.Warn("failed to restore roles", "err", err)
		} else if len(applied) > 0 {
			eng.Executor.Emit(ctx, audit.Record{
				CommunityID: c.subject.communityID,
				UserID:      c.subject.userID,
				Detector:    "role_backup",
				Action:      "restore_roles",
				Outcome:     audit.OutcomeApplied,
				Details:     map[string]string{"roles": strconv.Itoa(len(applied))},
			})
		}
	}
}

func (eng *Engine) persistSlowmode(ctx context.Context, c *BaseContext, sm SlowmodeChange) {
	err := eng.Executor.Platform.SetSlowmode(ctx, sm.ChannelID, sm.Delay)
	rec := audit.Record{
		CommunityID: c.subject.communityID,
		ChannelID:   sm.ChannelID,
		Detector:    "auto_slowmode",
		Action:      "slowmode_on",
		Outcome:     audit.OutcomeApplied,
		Details:     map[string]string{"delay": sm.Delay.String()},
	}
	if sm.Delay == 0 {
		rec.Action = "slowmode_off"
	}
	if err != nil {
		c.Logger.Warn("failed to change slowmode", "delay", sm.Delay, "err", err)
		rec.Outcome = audit.OutcomeFailed
		rec.Error = err.Error()
		if sm.Delay > 0 {
			// let a later burst try again
			eng.Slowmode.Deactivate(sm.ChannelID)
		}
	}
	eng.Executor.Emit(ctx, rec)
}

func (eng *Engine) persistVerdict(ctx context.Context, c *BaseContext, v Verdict) {
	communityID := c.subject.communityID
	logger := c.Logger.With("detector", v.Detector, "target", v.UserID)

	eng.Executor.Emit(ctx, audit.Record{
		CommunityID: communityID,
		UserID:      v.UserID,
		ChannelID:   c.subject.channelID,
		MessageID:   c.subject.messageID,
		Detector:    v.Detector,
		Reason:      v.Reason,
		Outcome:     audit.OutcomeDetected,
		Details:     v.Details,
	})

	if v.DeleteMessage && c.subject.messageID != "" {
		if err := eng.Executor.DeleteMessage(ctx, c.subject.channelID, c.subject.messageID); err != nil {
			logger.Warn("failed to delete message", "err", err)
		}
	}
	if v.PurgeLookback > 0 && c.subject.channelID != "" {
		n, err := eng.Executor.PurgeRecent(ctx, c.subject.channelID, v.UserID, v.PurgeLookback)
		if err != nil {
			logger.Warn("failed to purge recent messages", "err", err)
		} else {
			logger.Info("purged recent messages", "count", n)
		}
	}

	action, duration, reason, notify := v.Action, v.Duration, v.Reason, v.Notify
	if v.Strike && c.Config.StrikesSystem.Enabled && eng.Strikes != nil {
		count, esc, err := eng.Strikes.AddStrike(ctx, v.UserID, communityID, "", fmt.Sprintf("%s: %s", v.Detector, v.Reason), c.Config.StrikesSystem)
		if err != nil {
			logger.Error("failed to record strike", "err", err)
		} else {
			logger.Info("strike recorded", "count", count, "escalation", esc.Action)
			action, duration, reason = escalate(action, duration, reason, esc)
			if esc.Action == enforce.ActionWarn {
				notify = true
			}
		}
	}

	eng.Executor.Apply(ctx, enforce.Request{
		CommunityID:       communityID,
		UserID:            v.UserID,
		ChannelID:         c.subject.channelID,
		MessageID:         c.subject.messageID,
		Action:            action,
		Duration:          duration,
		DeleteHistoryDays: historyDays(action, v.DeleteHistoryDays),
		Reason:            reason,
		Source:            v.Detector,
		Notify:            notify,
	})
}

// Merges a strike escalation into the detector's own action. The more severe action wins; at equal severity the longer timeout wins.
func escalate(action enforce.Action, duration time.Duration, reason string, esc strikes.Escalation) (enforce.Action, time.Duration, string) {
	switch {
	case esc.Action.Severity() > action.Severity():
		return esc.Action, esc.Duration, withEscalation(reason, esc)
	case esc.Action == action && action == enforce.ActionTimeout && effectiveTimeout(esc.Duration) > effectiveTimeout(duration):
		return action, esc.Duration, withEscalation(reason, esc)
	}
	return action, duration, reason
}

func effectiveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return enforce.DefaultTimeout
	}
	return d
}

func historyDays(action enforce.Action, requested int) int {
	if action != enforce.ActionBan {
		return 0
	}
	if requested > 0 {
		return requested
	}
	return banHistoryDays
}

func withEscalation(reason string, esc strikes.Escalation) string {
	if esc.Reason == "" {
		return reason
	}
	return fmt.Sprintf("%s (%s)", reason, esc.Reason)
}

// Sweeps engine-owned state: lifts slowmode on channels that went quiet before it expired, and discards idle rate windows. Quarantine has its own sweeper.
func (eng *Engine) Sweep(ctx context.Context) {
	now := eng.now()
	for _, st := range eng.Slowmode.Expired(now) {
		if ctx.Err() != nil {
			return
		}
		eng.Slowmode.Deactivate(st.ChannelID)
		c := &BaseContext{
			Ctx:    ctx,
			Logger: eng.Logger.With("community", st.CommunityID, "channel", st.ChannelID),
			subject: subject{
				communityID: st.CommunityID,
				channelID:   st.ChannelID,
			},
		}
		eng.persistSlowmode(ctx, c, SlowmodeChange{ChannelID: st.ChannelID})
	}
	if idle, ok := eng.Windows.(interface{ DropIdle(time.Time) int }); ok {
		if n := idle.DropIdle(now.Add(-WindowIdleGrace)); n > 0 {
			eng.Logger.Debug("dropped idle rate windows", "count", n)
		}
	}
}

// How long an untouched rate window is kept before the sweep discards it. Longer than any configurable detector window.
var WindowIdleGrace = 2 * time.Hour

// Runs Sweep on every tick until ctx is cancelled.
func (eng *Engine) RunSweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			eng.Logger.Info("engine sweeper shutting down")
			return
		case <-ticker.C:
			eng.Sweep(ctx)
		}
	}
}
