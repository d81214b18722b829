package rules

import (
	"fmt"
	"strconv"

	"github.com/hearth-social/warden/automod"
	"github.com/hearth-social/warden/automod/helpers"
)

var _ automod.MessageRuleFunc = MentionSpamRule

func MentionSpamRule(c *automod.MessageContext) error {
	cfg := c.Config.MentionSpam
	if !cfg.Enabled || c.Message.AuthorCanManage || c.MessageRemoved() {
		return nil
	}
	users := len(helpers.DedupeStrings(c.Message.Mentions))
	roles := len(helpers.DedupeStrings(c.Message.RoleMentions))

	var reason string
	switch {
	case c.Message.MentionEveryone:
		reason = "mass mention (everyone/here)"
	case users > cfg.MaxMentions:
		reason = fmt.Sprintf("mentioned %d users (limit %d)", users, cfg.MaxMentions)
	case roles > cfg.MaxRoleMentions:
		reason = fmt.Sprintf("mentioned %d roles (limit %d)", roles, cfg.MaxRoleMentions)
	default:
		return nil
	}
	c.AddVerdict(automod.Verdict{
		Detector:      "mention_spam",
		Reason:        reason,
		DeleteMessage: true,
		Action:        cfg.Action,
		Duration:      cfg.Timeout(),
		Strike:        true,
		Details: map[string]string{
			"user_mentions": strconv.Itoa(users),
			"role_mentions": strconv.Itoa(roles),
		},
	})
	return nil
}
