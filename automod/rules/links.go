package rules

import (
	"strings"

	"github.com/hearth-social/warden/automod"
	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/helpers"
	"github.com/hearth-social/warden/automod/setstore"
)

var _ automod.MessageRuleFunc = LinkFilterRule

// Removes messages containing blacklisted links, community invites, or links to known phishing domains. The first offending link decides the reason.
func LinkFilterRule(c *automod.MessageContext) error {
	cfg := c.Config.LinkFilter
	if !cfg.Enabled || c.Message.AuthorCanManage || c.MessageRemoved() || config.ChannelAllowed(cfg.WhitelistedChannels, c.Message.ChannelID) {
		return nil
	}
	for _, u := range helpers.ExtractTextURLs(c.Message.Content) {
		reason := linkViolation(c, cfg, u)
		if reason == "" {
			continue
		}
		c.AddVerdict(automod.Verdict{
			Detector:      "link_filter",
			Reason:        reason,
			DeleteMessage: true,
			Action:        cfg.Action,
			Strike:        true,
			Details:       map[string]string{"url": u},
		})
		return nil
	}
	return nil
}

func linkViolation(c *automod.MessageContext, cfg config.LinkFilterConfig, raw string) string {
	lower := strings.ToLower(raw)
	for _, w := range cfg.Whitelist {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return ""
		}
	}
	for _, b := range cfg.Blacklist {
		if b != "" && strings.Contains(lower, strings.ToLower(b)) {
			return "blacklisted link"
		}
	}
	if cfg.BlockInvites && helpers.IsInviteLink(lower) {
		return "community invite link"
	}
	if cfg.BlockPhishing {
		for _, d := range helpers.DomainCandidates(helpers.HostOf(raw)) {
			if c.InSet(setstore.SetPhishingDomains, d) {
				return "known phishing domain"
			}
		}
	}
	return ""
}
