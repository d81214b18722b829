// Per-community moderation configuration: the typed document, its defaults and validation, persistence backends, and the shared in-memory registry.
package config

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hearth-social/warden/automod/enforce"
)

type LogsConfig struct {
	ChannelID string `json:"channel_id" yaml:"channel_id"`
}

type QuarantineConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	RoleID          string `json:"role_id" yaml:"role_id" validate:"required_if=Enabled true"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes" validate:"min=1"`
}

type AntiSpamConfig struct {
	Enabled             bool           `json:"enabled" yaml:"enabled"`
	MessageThreshold    int            `json:"message_threshold" yaml:"message_threshold" validate:"min=2"`
	TimeWindow          int            `json:"time_window" yaml:"time_window" validate:"min=1"`
	DuplicateThreshold  int            `json:"duplicate_threshold" yaml:"duplicate_threshold" validate:"min=2"`
	Action              enforce.Action `json:"action" yaml:"action" validate:"oneof=none warn timeout kick ban"`
	TimeoutDuration     int            `json:"timeout_duration" yaml:"timeout_duration" validate:"min=1"`
	WhitelistedChannels []string       `json:"whitelisted_channels" yaml:"whitelisted_channels"`
}

type AntiRaidConfig struct {
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	JoinThreshold int            `json:"join_threshold" yaml:"join_threshold" validate:"min=2"`
	TimeWindow    int            `json:"time_window" yaml:"time_window" validate:"min=1"`
	Action        enforce.Action `json:"action" yaml:"action" validate:"oneof=none warn timeout kick ban"`
}

type LinkFilterConfig struct {
	Enabled             bool           `json:"enabled" yaml:"enabled"`
	BlockInvites        bool           `json:"block_invites" yaml:"block_invites"`
	BlockPhishing       bool           `json:"block_phishing" yaml:"block_phishing"`
	Whitelist           []string       `json:"whitelist" yaml:"whitelist"`
	Blacklist           []string       `json:"blacklist" yaml:"blacklist"`
	Action              enforce.Action `json:"action" yaml:"action" validate:"oneof=none warn timeout kick ban"`
	WhitelistedChannels []string       `json:"whitelisted_channels" yaml:"whitelisted_channels"`
}

type MentionSpamConfig struct {
	Enabled         bool           `json:"enabled" yaml:"enabled"`
	MaxMentions     int            `json:"max_mentions" yaml:"max_mentions" validate:"min=1"`
	MaxRoleMentions int            `json:"max_role_mentions" yaml:"max_role_mentions" validate:"min=0"`
	Action          enforce.Action `json:"action" yaml:"action" validate:"oneof=none warn timeout kick ban"`
	TimeoutDuration int            `json:"timeout_duration" yaml:"timeout_duration" validate:"min=1"`
}

type AutoSlowmodeConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	TriggerThreshold int  `json:"trigger_threshold" yaml:"trigger_threshold" validate:"min=2"`
	TriggerWindow    int  `json:"trigger_window" yaml:"trigger_window" validate:"min=1"`
	// per-message delay applied to the channel, in seconds
	SlowmodeDuration int `json:"slowmode_duration" yaml:"slowmode_duration" validate:"min=1,max=21600"`
	// how long slowmode stays on, in seconds
	SlowmodeTime int `json:"slowmode_time" yaml:"slowmode_time" validate:"min=1"`
}

type WordFilterConfig struct {
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Words   []string       `json:"words" yaml:"words"`
	Action  enforce.Action `json:"action" yaml:"action" validate:"oneof=none warn timeout kick ban"`
}

type NSFWDetectionConfig struct {
	Enabled             bool           `json:"enabled" yaml:"enabled"`
	APIKey              string         `json:"api_key" yaml:"api_key"`
	ConfidenceThreshold float64        `json:"confidence_threshold" yaml:"confidence_threshold" validate:"gt=0,lte=1"`
	Action              enforce.Action `json:"action" yaml:"action" validate:"oneof=none warn timeout kick ban"`
	WhitelistedChannels []string       `json:"whitelisted_channels" yaml:"whitelisted_channels"`
}

type StrikesConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	StrikesToBan     int  `json:"strikes_to_ban" yaml:"strikes_to_ban" validate:"min=1"`
	StrikeExpiryDays int  `json:"strike_expiry_days" yaml:"strike_expiry_days" validate:"min=1"`

	// strike count to action applied when that count is reached (below strikes_to_ban)
	ProgressiveActions map[int]enforce.Action `json:"progressive_actions" yaml:"progressive_actions" validate:"dive,keys,min=1,endkeys,oneof=none warn timeout kick"`
}

type RoleBackupConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	RestoreOnUnban bool `json:"restore_on_unban" yaml:"restore_on_unban"`
}

// Complete moderation configuration for a single community.
//
// Values returned from a Registry are shared between all detectors and must be treated as read-only; use Registry.Update to change them.
type ModerationConfig struct {
	CommunityID   string              `json:"community_id" yaml:"community_id" validate:"required"`
	Logs          LogsConfig          `json:"logs" yaml:"logs"`
	Quarantine    QuarantineConfig    `json:"quarantine" yaml:"quarantine"`
	AntiSpam      AntiSpamConfig      `json:"anti_spam" yaml:"anti_spam"`
	AntiRaid      AntiRaidConfig      `json:"anti_raid" yaml:"anti_raid"`
	LinkFilter    LinkFilterConfig    `json:"link_filter" yaml:"link_filter"`
	MentionSpam   MentionSpamConfig   `json:"mention_spam" yaml:"mention_spam"`
	AutoSlowmode  AutoSlowmodeConfig  `json:"auto_slowmode" yaml:"auto_slowmode"`
	WordFilter    WordFilterConfig    `json:"word_filter" yaml:"word_filter"`
	NSFWDetection NSFWDetectionConfig `json:"nsfw_detection" yaml:"nsfw_detection"`
	StrikesSystem StrikesConfig       `json:"strikes_system" yaml:"strikes_system"`
	RoleBackup    RoleBackupConfig    `json:"role_backup" yaml:"role_backup"`
}

func defaultProgressiveActions() map[int]enforce.Action {
	return map[int]enforce.Action{
		1: enforce.ActionWarn,
		2: enforce.ActionTimeout,
	}
}

// Safe defaults: every detector disabled, thresholds set to reasonable values for when an operator enables them.
func Default(communityID string) *ModerationConfig {
	return &ModerationConfig{
		CommunityID: communityID,
		Quarantine: QuarantineConfig{
			DurationMinutes: 10,
		},
		AntiSpam: AntiSpamConfig{
			MessageThreshold:    5,
			TimeWindow:          5,
			DuplicateThreshold:  3,
			Action:              enforce.ActionTimeout,
			TimeoutDuration:     300,
			WhitelistedChannels: []string{},
		},
		AntiRaid: AntiRaidConfig{
			JoinThreshold: 10,
			TimeWindow:    60,
			Action:        enforce.ActionKick,
		},
		LinkFilter: LinkFilterConfig{
			BlockInvites:        true,
			BlockPhishing:       true,
			Whitelist:           []string{},
			Blacklist:           []string{},
			Action:              enforce.ActionWarn,
			WhitelistedChannels: []string{},
		},
		MentionSpam: MentionSpamConfig{
			MaxMentions:     5,
			MaxRoleMentions: 3,
			Action:          enforce.ActionTimeout,
			TimeoutDuration: 600,
		},
		AutoSlowmode: AutoSlowmodeConfig{
			TriggerThreshold: 10,
			TriggerWindow:    10,
			SlowmodeDuration: 5,
			SlowmodeTime:     300,
		},
		WordFilter: WordFilterConfig{
			Words:  []string{},
			Action: enforce.ActionWarn,
		},
		NSFWDetection: NSFWDetectionConfig{
			ConfidenceThreshold: 0.8,
			Action:              enforce.ActionWarn,
			WhitelistedChannels: []string{},
		},
		StrikesSystem: StrikesConfig{
			StrikesToBan:       3,
			StrikeExpiryDays:   30,
			ProgressiveActions: defaultProgressiveActions(),
		},
		RoleBackup: RoleBackupConfig{
			RestoreOnUnban: true,
		},
	}
}

// Deep copy; slices and maps are not shared with the original.
func (c *ModerationConfig) Clone() *ModerationConfig {
	out := *c
	out.AntiSpam.WhitelistedChannels = slices.Clone(c.AntiSpam.WhitelistedChannels)
	out.LinkFilter.Whitelist = slices.Clone(c.LinkFilter.Whitelist)
	out.LinkFilter.Blacklist = slices.Clone(c.LinkFilter.Blacklist)
	out.LinkFilter.WhitelistedChannels = slices.Clone(c.LinkFilter.WhitelistedChannels)
	out.WordFilter.Words = slices.Clone(c.WordFilter.Words)
	out.NSFWDetection.WhitelistedChannels = slices.Clone(c.NSFWDetection.WhitelistedChannels)
	out.StrikesSystem.ProgressiveActions = maps.Clone(c.StrikesSystem.ProgressiveActions)
	return &out
}

var validate = validator.New()

func (c *ModerationConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid moderation config for %q: %w", c.CommunityID, err)
	}
	return nil
}

// fills in nil collections left by decoding a partial document
func (c *ModerationConfig) normalize() {
	if c.StrikesSystem.ProgressiveActions == nil {
		c.StrikesSystem.ProgressiveActions = defaultProgressiveActions()
	}
	for _, p := range []*[]string{
		&c.AntiSpam.WhitelistedChannels,
		&c.LinkFilter.Whitelist,
		&c.LinkFilter.Blacklist,
		&c.LinkFilter.WhitelistedChannels,
		&c.WordFilter.Words,
		&c.NSFWDetection.WhitelistedChannels,
	} {
		if *p == nil {
			*p = []string{}
		}
	}
}

// starting point for decoding a stored document: defaults for absent keys, but no pre-populated map (decoders merge in to existing maps)
func decodeBase(communityID string) *ModerationConfig {
	c := Default(communityID)
	c.StrikesSystem.ProgressiveActions = nil
	return c
}

func (c AntiSpamConfig) Window() time.Duration {
	return time.Duration(c.TimeWindow) * time.Second
}

func (c AntiSpamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutDuration) * time.Second
}

func (c AntiRaidConfig) Window() time.Duration {
	return time.Duration(c.TimeWindow) * time.Second
}

func (c MentionSpamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutDuration) * time.Second
}

func (c AutoSlowmodeConfig) Window() time.Duration {
	return time.Duration(c.TriggerWindow) * time.Second
}

func (c AutoSlowmodeConfig) Delay() time.Duration {
	return time.Duration(c.SlowmodeDuration) * time.Second
}

func (c AutoSlowmodeConfig) Lifetime() time.Duration {
	return time.Duration(c.SlowmodeTime) * time.Second
}

func (c QuarantineConfig) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

func (c StrikesConfig) Expiry() time.Duration {
	return time.Duration(c.StrikeExpiryDays) * 24 * time.Hour
}

// Reports whether channelID is in the allow-list.
func ChannelAllowed(allowList []string, channelID string) bool {
	return slices.Contains(allowList, channelID)
}
