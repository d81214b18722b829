// Event processing runtime: runs detector rules over inbound community events, then applies the resulting verdicts through the enforcement executor.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hearth-social/warden/automod/audit"
	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/hearth-social/warden/automod/quarantine"
	"github.com/hearth-social/warden/automod/rolebackup"
	"github.com/hearth-social/warden/automod/setstore"
	"github.com/hearth-social/warden/automod/strikes"
	"github.com/hearth-social/warden/automod/visual"
	"github.com/hearth-social/warden/automod/window"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("automod")

// runtime for executing rules, managing state, and recording moderation actions.
//
// TODO: careful when initializing: several fields should not be null or zero, even though they are pointer type.
type Engine struct {
	Logger     *slog.Logger
	Rules      RuleSet
	Windows    window.WindowStore
	Sets       setstore.SetStore
	Configs    *config.Registry
	Executor   *enforce.Executor
	Strikes    *strikes.Ledger
	Backups    *rolebackup.Service
	Quarantine *quarantine.Service
	Slowmode   *SlowmodeTracker
	// image classification (optional); image rules are skipped without it
	Classifier visual.Classifier
	// time source for events without a timestamp and for sweeps; defaults to time.Now
	Clock func() time.Time
}

func (eng *Engine) now() time.Time {
	if eng.Clock != nil {
		return eng.Clock()
	}
	return time.Now()
}

// Dispatches on whichever event type is set.
func (eng *Engine) ProcessEvent(ctx context.Context, evt Event) error {
	switch {
	case evt.Message != nil:
		return eng.ProcessMessage(ctx, *evt.Message)
	case evt.Join != nil:
		return eng.ProcessJoin(ctx, *evt.Join)
	case evt.Ban != nil:
		return eng.ProcessBan(ctx, *evt.Ban)
	}
	return fmt.Errorf("empty event envelope")
}

func (eng *Engine) ProcessMessage(ctx context.Context, evt MessageEvent) error {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "community", evt.CommunityID, "message", evt.MessageID)
			eventErrorCount.WithLabelValues("message").Inc()
		}
	}()
	ctx, span := tracer.Start(ctx, "ProcessMessage")
	defer span.End()
	span.SetAttributes(attribute.String("community", evt.CommunityID))

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("message").Inc()

	if evt.AuthorIsBot {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = eng.now()
	}
	cfg, err := eng.Configs.Get(ctx, evt.CommunityID)
	if err != nil {
		eventErrorCount.WithLabelValues("message").Inc()
		return err
	}

	c := &MessageContext{
		BaseContext: BaseContext{
			Ctx:     ctx,
			Logger:  eng.Logger.With("community", evt.CommunityID, "channel", evt.ChannelID, "user", evt.AuthorID, "message", evt.MessageID),
			Config:  cfg,
			engine:  eng,
			effects: &Effects{},
			subject: subject{
				communityID: evt.CommunityID,
				channelID:   evt.ChannelID,
				messageID:   evt.MessageID,
				userID:      evt.AuthorID,
			},
			now: evt.CreatedAt,
		},
		Message: evt,
	}
	eng.Logger.Debug("processing message", "community", evt.CommunityID, "message", evt.MessageID)
	eng.Rules.CallMessageRules(c)
	eng.persistEffects(ctx, &c.BaseContext)
	return nil
}

func (eng *Engine) ProcessJoin(ctx context.Context, evt JoinEvent) error {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "community", evt.CommunityID, "user", evt.UserID)
			eventErrorCount.WithLabelValues("join").Inc()
		}
	}()
	ctx, span := tracer.Start(ctx, "ProcessJoin")
	defer span.End()
	span.SetAttributes(attribute.String("community", evt.CommunityID))

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("join").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("join").Inc()

	if evt.IsBot {
		return nil
	}
	if evt.JoinedAt.IsZero() {
		evt.JoinedAt = eng.now()
	}
	cfg, err := eng.Configs.Get(ctx, evt.CommunityID)
	if err != nil {
		eventErrorCount.WithLabelValues("join").Inc()
		return err
	}

	c := &JoinContext{
		BaseContext: BaseContext{
			Ctx:     ctx,
			Logger:  eng.Logger.With("community", evt.CommunityID, "user", evt.UserID),
			Config:  cfg,
			engine:  eng,
			effects: &Effects{},
			subject: subject{
				communityID: evt.CommunityID,
				userID:      evt.UserID,
			},
			now: evt.JoinedAt,
		},
		Join: evt,
	}
	eng.Rules.CallJoinRules(c)
	eng.persistEffects(ctx, &c.BaseContext)
	return nil
}

// Snapshots the banned member's roles when role backup is enabled.
func (eng *Engine) ProcessBan(ctx context.Context, evt BanEvent) error {
	eventProcessCount.WithLabelValues("ban").Inc()
	cfg, err := eng.Configs.Get(ctx, evt.CommunityID)
	if err != nil {
		eventErrorCount.WithLabelValues("ban").Inc()
		return err
	}
	if !cfg.RoleBackup.Enabled || eng.Backups == nil {
		return nil
	}
	if err := eng.Backups.Backup(ctx, evt.CommunityID, evt.UserID, evt.RoleIDs, evt.Reason); err != nil {
		eventErrorCount.WithLabelValues("ban").Inc()
		return fmt.Errorf("backing up roles: %w", err)
	}
	return nil
}

// Enforcement requested directly by an operator, bypassing detection.
func (eng *Engine) Enforce(ctx context.Context, req enforce.Request) enforce.Outcome {
	if req.Source == "" {
		req.Source = "manual"
	}
	return eng.Executor.Apply(ctx, req)
}

// Adds a strike on an operator's behalf and applies whatever escalation the community's ladder calls for. Returns the new live count.
func (eng *Engine) AddManualStrike(ctx context.Context, communityID, userID, moderatorID, reason string) (int, enforce.Outcome, error) {
	cfg, err := eng.Configs.Get(ctx, communityID)
	if err != nil {
		return 0, enforce.Outcome{}, err
	}
	count, esc, err := eng.Strikes.AddStrike(ctx, userID, communityID, moderatorID, reason, cfg.StrikesSystem)
	if err != nil {
		return 0, enforce.Outcome{}, err
	}
	eng.Executor.Emit(ctx, audit.Record{
		CommunityID: communityID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Detector:    "strikes",
		Reason:      reason,
		Outcome:     audit.OutcomeDetected,
		Details:     map[string]string{"strike_count": strconv.Itoa(count)},
	})
	out := eng.Executor.Apply(ctx, enforce.Request{
		CommunityID:       communityID,
		UserID:            userID,
		Action:            esc.Action,
		Duration:          esc.Duration,
		DeleteHistoryDays: banHistoryDays,
		Reason:            withEscalation(reason, esc),
		Source:            "strikes",
		ModeratorID:       moderatorID,
	})
	return count, out, nil
}
