package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hearth-social/warden/automod/engine"
	"github.com/hearth-social/warden/automod/scheduler"
)

// Gateway intents the consumer needs: guild messages with content, member joins, and bans.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildModeration |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent

type GatewayConfig struct {
	// number of parallel workers; events of one guild are always handled by a single worker at a time
	Workers int
	// per-guild backlog; events beyond this are dropped
	MaxQueue int
	// how long to remember a member's roles for ban-time backups
	RoleMemory time.Duration
}

// Consumes Discord gateway events and feeds them to the engine, routed per guild through a keyed scheduler.
type Gateway struct {
	Session *discordgo.Session
	Engine  *engine.Engine
	Logger  *slog.Logger

	ctx   context.Context
	sched *scheduler.Scheduler[engine.Event]
	// "guild/user" to role IDs, updated from every event which carries member roles. Ban events do not include roles, and the member may already have left the state cache.
	memberRoles *expirable.LRU[string, []string]
}

func NewGateway(s *discordgo.Session, eng *engine.Engine, logger *slog.Logger, cfg GatewayConfig) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.RoleMemory <= 0 {
		cfg.RoleMemory = 24 * time.Hour
	}
	g := &Gateway{
		Session:     s,
		Engine:      eng,
		Logger:      logger.With("component", "gateway"),
		ctx:         context.Background(),
		memberRoles: expirable.NewLRU[string, []string](100_000, nil, cfg.RoleMemory),
	}
	g.sched = scheduler.NewScheduler(cfg.Workers, cfg.MaxQueue, "gateway", g.process)
	return g
}

// Connects to the gateway and processes events until ctx is cancelled, then drains in-flight work.
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx
	g.Session.Identify.Intents = Intents
	g.Session.AddHandler(g.onMessageCreate)
	g.Session.AddHandler(g.onMemberAdd)
	g.Session.AddHandler(g.onMemberUpdate)
	g.Session.AddHandler(g.onBanAdd)

	if err := g.Session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	g.Logger.Info("connected to discord gateway")

	<-ctx.Done()
	g.Logger.Info("closing discord gateway")
	if err := g.Session.Close(); err != nil {
		g.Logger.Warn("error closing gateway session", "err", err)
	}
	g.sched.Shutdown()
	return nil
}

func (g *Gateway) process(ctx context.Context, evt engine.Event) error {
	return g.Engine.ProcessEvent(ctx, evt)
}

func (g *Gateway) enqueue(typ string, evt engine.Event) {
	gatewayEvents.WithLabelValues(typ).Inc()
	if err := g.sched.AddWork(g.ctx, evt.CommunityID(), evt); err != nil {
		gatewayEventsDropped.WithLabelValues(typ).Inc()
		if errors.Is(err, scheduler.ErrQueueFull) {
			g.Logger.Warn("dropping gateway event, community backlog full", "type", typ, "community", evt.CommunityID())
		} else {
			g.Logger.Info("dropping gateway event", "type", typ, "err", err)
		}
	}
}

func (g *Gateway) rememberRoles(guildID, userID string, roles []string) {
	if guildID == "" || userID == "" {
		return
	}
	g.memberRoles.Add(guildID+"/"+userID, roles)
}

// Best knowledge of a member's roles: the state cache if it still has them, otherwise the last roles seen on an event.
func (g *Gateway) rolesOf(guildID, userID string) []string {
	if g.Session.State != nil {
		if m, err := g.Session.State.Member(guildID, userID); err == nil && m != nil {
			return m.Roles
		}
	}
	roles, _ := g.memberRoles.Get(guildID + "/" + userID)
	return roles
}

func (g *Gateway) canManage(userID, channelID string) bool {
	if g.Session.State == nil {
		return false
	}
	perms, err := g.Session.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false
	}
	return perms&(discordgo.PermissionManageMessages|discordgo.PermissionAdministrator) != 0
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// direct messages are not moderated
	if m.Message == nil || m.GuildID == "" || m.Author == nil {
		return
	}
	if m.Member != nil {
		g.rememberRoles(m.GuildID, m.Author.ID, m.Member.Roles)
	}
	evt := MessageEventFrom(m.Message, !m.Author.Bot && g.canManage(m.Author.ID, m.ChannelID))
	g.enqueue("message", engine.Event{Message: &evt})
}

func (g *Gateway) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil {
		return
	}
	g.rememberRoles(m.GuildID, m.User.ID, m.Roles)
	evt := JoinEventFrom(m.Member)
	g.enqueue("join", engine.Event{Join: &evt})
}

func (g *Gateway) onMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.Member == nil || m.User == nil {
		return
	}
	gatewayEvents.WithLabelValues("member_update").Inc()
	g.rememberRoles(m.GuildID, m.User.ID, m.Roles)
}

func (g *Gateway) onBanAdd(s *discordgo.Session, b *discordgo.GuildBanAdd) {
	if b.User == nil {
		return
	}
	evt := engine.BanEvent{
		CommunityID: b.GuildID,
		UserID:      b.User.ID,
		RoleIDs:     g.rolesOf(b.GuildID, b.User.ID),
	}
	g.enqueue("ban", engine.Event{Ban: &evt})
}

// Converts a guild message. canManage reports whether the author holds message-management permission in the channel.
func MessageEventFrom(m *discordgo.Message, canManage bool) engine.MessageEvent {
	evt := engine.MessageEvent{
		CommunityID:     m.GuildID,
		ChannelID:       m.ChannelID,
		MessageID:       m.ID,
		AuthorCanManage: canManage,
		Content:         m.Content,
		RoleMentions:    m.MentionRoles,
		MentionEveryone: m.MentionEveryone,
		CreatedAt:       m.Timestamp,
	}
	if m.Author != nil {
		evt.AuthorID = m.Author.ID
		evt.AuthorIsBot = m.Author.Bot
	}
	for _, u := range m.Mentions {
		if u != nil {
			evt.Mentions = append(evt.Mentions, u.ID)
		}
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		evt.Attachments = append(evt.Attachments, engine.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	return evt
}

func JoinEventFrom(m *discordgo.Member) engine.JoinEvent {
	evt := engine.JoinEvent{
		CommunityID: m.GuildID,
		JoinedAt:    m.JoinedAt,
	}
	if m.User != nil {
		evt.UserID = m.User.ID
		evt.IsBot = m.User.Bot
	}
	return evt
}
