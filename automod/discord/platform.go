// Adapter between the moderation engine and the Discord API: the enforce.Platform implementation, and a gateway consumer which turns Discord events into engine events.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hearth-social/warden/automod/enforce"
)

// the most messages a single channel history request returns
const historyPageSize = 100

// Implements enforce.Platform on top of a discordgo REST session. Communities are guilds.
type Platform struct {
	Session *discordgo.Session
	Logger  *slog.Logger
}

var _ enforce.Platform = (*Platform)(nil)

func NewPlatform(s *discordgo.Session, logger *slog.Logger) *Platform {
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		Session: s,
		Logger:  logger.With("component", "discord"),
	}
}

// Maps HTTP status codes on Discord REST errors on to the engine's sentinel errors.
func translateErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w: %w", op, enforce.ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, enforce.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *Platform) done(op string, err error) error {
	if err == nil {
		apiRequests.WithLabelValues(op, "ok").Inc()
		return nil
	}
	out := translateErr(op, err)
	switch {
	case errors.Is(out, enforce.ErrPermissionDenied):
		apiRequests.WithLabelValues(op, "forbidden").Inc()
	case errors.Is(out, enforce.ErrNotFound):
		apiRequests.WithLabelValues(op, "not_found").Inc()
	default:
		apiRequests.WithLabelValues(op, "error").Inc()
	}
	return out
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := p.Session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	return p.done("delete_message", err)
}

// Returns messages from the latest page of channel history created at or after since, newest first.
func (p *Platform) RecentMessages(ctx context.Context, channelID string, since time.Time) ([]enforce.Message, error) {
	msgs, err := p.Session.ChannelMessages(channelID, historyPageSize, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, p.done("channel_messages", err)
	}
	apiRequests.WithLabelValues("channel_messages", "ok").Inc()
	out := []enforce.Message{}
	for _, m := range msgs {
		if m.Timestamp.Before(since) {
			continue
		}
		author := ""
		if m.Author != nil {
			author = m.Author.ID
		}
		out = append(out, enforce.Message{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			AuthorID:  author,
			CreatedAt: m.Timestamp,
		})
	}
	return out, nil
}

func (p *Platform) SendDirect(ctx context.Context, userID, text string) error {
	ch, err := p.Session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return p.done("dm_channel", err)
	}
	_, err = p.Session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	return p.done("send_direct", err)
}

func (p *Platform) SendMessage(ctx context.Context, channelID, text string) error {
	_, err := p.Session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return p.done("send_message", err)
}

func (p *Platform) Timeout(ctx context.Context, communityID, userID string, until time.Time, reason string) error {
	err := p.Session.GuildMemberTimeout(communityID, userID, &until, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return p.done("timeout", err)
}

func (p *Platform) Kick(ctx context.Context, communityID, userID, reason string) error {
	err := p.Session.GuildMemberDeleteWithReason(communityID, userID, reason, discordgo.WithContext(ctx))
	return p.done("kick", err)
}

func (p *Platform) Ban(ctx context.Context, communityID, userID, reason string, deleteHistoryDays int) error {
	err := p.Session.GuildBanCreateWithReason(communityID, userID, reason, deleteHistoryDays, discordgo.WithContext(ctx))
	return p.done("ban", err)
}

func (p *Platform) AddRole(ctx context.Context, communityID, userID, roleID string) error {
	err := p.Session.GuildMemberRoleAdd(communityID, userID, roleID, discordgo.WithContext(ctx))
	return p.done("add_role", err)
}

func (p *Platform) RemoveRole(ctx context.Context, communityID, userID, roleID string) error {
	err := p.Session.GuildMemberRoleRemove(communityID, userID, roleID, discordgo.WithContext(ctx))
	return p.done("remove_role", err)
}

// A zero delay turns slowmode off.
func (p *Platform) SetSlowmode(ctx context.Context, channelID string, delay time.Duration) error {
	secs := int(delay / time.Second)
	_, err := p.Session.ChannelEdit(channelID, &discordgo.ChannelEdit{RateLimitPerUser: &secs}, discordgo.WithContext(ctx))
	return p.done("slowmode", err)
}

func (p *Platform) Roles(ctx context.Context, communityID string) ([]enforce.Role, error) {
	roles, err := p.Session.GuildRoles(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, p.done("roles", err)
	}
	apiRequests.WithLabelValues("roles", "ok").Inc()
	out := make([]enforce.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, enforce.Role{
			ID:       r.ID,
			Name:     r.Name,
			Position: r.Position,
			Default:  r.ID == communityID,
			Managed:  r.Managed,
		})
	}
	return out, nil
}

// Position of the highest role held by the bot account; roles at or above it cannot be assigned.
func (p *Platform) TopRolePosition(ctx context.Context, communityID string) (int, error) {
	if p.Session.State == nil || p.Session.State.User == nil {
		return 0, fmt.Errorf("top role: session is not connected")
	}
	member, err := p.Session.GuildMember(communityID, p.Session.State.User.ID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, p.done("bot_member", err)
	}
	roles, err := p.Roles(ctx, communityID)
	if err != nil {
		return 0, err
	}
	return topPosition(roles, member.Roles), nil
}

func topPosition(roles []enforce.Role, held []string) int {
	top := 0
	for _, r := range roles {
		for _, id := range held {
			if r.ID == id && r.Position > top {
				top = r.Position
			}
		}
	}
	return top
}
