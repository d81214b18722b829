package audit

import (
	"context"
)

type MessageSender interface {
	SendMessage(ctx context.Context, channelID, text string) error
}

// Posts records to the community's configured log channel. Communities without one are silently skipped.
type ChannelSink struct {
	Sender MessageSender
	// resolves the log channel for a community; empty means none
	ChannelFor func(ctx context.Context, communityID string) string
}

func (s *ChannelSink) Emit(ctx context.Context, rec Record) error {
	channelID := s.ChannelFor(ctx, rec.CommunityID)
	if channelID == "" {
		return nil
	}
	return s.Sender.SendMessage(ctx, channelID, rec.Summary())
}
