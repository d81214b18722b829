package audit

import (
	"context"
	"log/slog"
)

type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Emit(ctx context.Context, rec Record) error {
	level := slog.LevelInfo
	if rec.Outcome == OutcomeFailed {
		level = slog.LevelWarn
	}
	s.Logger.Log(ctx, level, "moderation audit",
		"id", rec.ID,
		"community", rec.CommunityID,
		"user", rec.UserID,
		"channel", rec.ChannelID,
		"detector", rec.Detector,
		"action", rec.Action,
		"outcome", rec.Outcome,
		"reason", rec.Reason,
		"moderator", rec.ModeratorID,
		"err", rec.Error,
	)
	return nil
}
