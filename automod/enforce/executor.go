package enforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearth-social/warden/automod/audit"
)

const (
	// mute applied by the "timeout" step of the strike ladder
	StrikeTimeout  = 24 * time.Hour
	DefaultTimeout = 10 * time.Minute
)

type Request struct {
	CommunityID string
	UserID      string
	ChannelID   string
	MessageID   string
	Action      Action
	// only used for ActionTimeout; DefaultTimeout when zero
	Duration time.Duration
	// only used for ActionBan
	DeleteHistoryDays int
	Reason            string
	// "detector" that produced the request, or "manual"
	Source      string
	ModeratorID string
	// send the target a private notice before acting
	Notify bool
}

type Outcome struct {
	Action  Action
	Applied bool
	Err     error
}

// Turns requests into platform calls and records each attempt in the audit trail.
//
// Platform failures are logged and audited as failed; they are reported in the Outcome but never stop the caller's pipeline.
type Executor struct {
	Platform Platform
	Audit    audit.Sink
	Logger   *slog.Logger
	Clock    func() time.Time
}

func NewExecutor(p Platform, sink audit.Sink, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Platform: p,
		Audit:    sink,
		Logger:   logger.With("component", "enforce"),
		Clock:    time.Now,
	}
}

func (x *Executor) now() time.Time {
	if x.Clock != nil {
		return x.Clock()
	}
	return time.Now()
}

func (x *Executor) Apply(ctx context.Context, req Request) Outcome {
	logger := x.Logger.With("community", req.CommunityID, "user", req.UserID, "action", req.Action, "source", req.Source)
	out := Outcome{Action: req.Action}
	if req.Action == ActionTimeout && req.Duration <= 0 {
		req.Duration = DefaultTimeout
	}

	if req.Notify || req.Action == ActionWarn {
		// best effort: users may have private messages closed
		if err := x.Platform.SendDirect(ctx, req.UserID, noticeText(req)); err != nil {
			logger.Info("failed to send moderation notice", "err", err)
		}
	}

	var err error
	switch req.Action {
	case ActionNone, "":
		out.Applied = true
		return out
	case ActionWarn:
		// the notice is the whole action
	case ActionTimeout:
		err = x.Platform.Timeout(ctx, req.CommunityID, req.UserID, x.now().Add(req.Duration), req.Reason)
	case ActionKick:
		err = x.Platform.Kick(ctx, req.CommunityID, req.UserID, req.Reason)
	case ActionBan:
		err = x.Platform.Ban(ctx, req.CommunityID, req.UserID, req.Reason, req.DeleteHistoryDays)
	default:
		err = fmt.Errorf("unsupported action %q", req.Action)
	}

	rec := audit.Record{
		CommunityID: req.CommunityID,
		UserID:      req.UserID,
		ChannelID:   req.ChannelID,
		MessageID:   req.MessageID,
		ModeratorID: req.ModeratorID,
		Detector:    req.Source,
		Action:      string(req.Action),
		Reason:      req.Reason,
		Outcome:     audit.OutcomeApplied,
	}
	if req.Action == ActionTimeout {
		rec.Details = map[string]string{"duration": req.Duration.String()}
	}
	if err != nil {
		out.Err = err
		rec.Outcome = audit.OutcomeFailed
		rec.Error = err.Error()
		if errors.Is(err, ErrPermissionDenied) {
			logger.Warn("enforcement not permitted", "err", err)
		} else {
			logger.Error("enforcement failed", "err", err)
		}
		actionsApplied.WithLabelValues(string(req.Action), "failed").Inc()
	} else {
		out.Applied = true
		logger.Info("enforcement applied", "reason", req.Reason)
		actionsApplied.WithLabelValues(string(req.Action), "ok").Inc()
	}
	x.Emit(ctx, rec)
	return out
}

// Sends a record to the audit sink, logging (and otherwise ignoring) delivery failures.
func (x *Executor) Emit(ctx context.Context, rec audit.Record) {
	if x.Audit == nil {
		return
	}
	rec.Stamp(x.now())
	if err := x.Audit.Emit(ctx, rec); err != nil {
		x.Logger.Warn("failed to deliver audit record", "detector", rec.Detector, "err", err)
	}
}

// Deletes a message; a message which is already gone is not an error.
func (x *Executor) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := x.Platform.DeleteMessage(ctx, channelID, messageID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		messagesDeleted.WithLabelValues("failed").Inc()
		return err
	}
	messagesDeleted.WithLabelValues("ok").Inc()
	return nil
}

// Deletes messages by userID in the channel created within lookback. Returns the number deleted. Individual delete failures are skipped.
func (x *Executor) PurgeRecent(ctx context.Context, channelID, userID string, lookback time.Duration) (int, error) {
	msgs, err := x.Platform.RecentMessages(ctx, channelID, x.now().Add(-lookback))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.AuthorID != userID {
			continue
		}
		if err := x.DeleteMessage(ctx, m.ChannelID, m.ID); err != nil {
			x.Logger.Debug("purge delete failed", "channel", m.ChannelID, "message", m.ID, "err", err)
			continue
		}
		n++
	}
	return n, nil
}

func noticeText(req Request) string {
	switch req.Action {
	case ActionTimeout:
		return fmt.Sprintf("You have been timed out for %s: %s", req.Duration, req.Reason)
	case ActionKick:
		return fmt.Sprintf("You have been removed from the community: %s", req.Reason)
	case ActionBan:
		return fmt.Sprintf("You have been banned from the community: %s", req.Reason)
	default:
		return fmt.Sprintf("Moderation warning: %s", req.Reason)
	}
}
