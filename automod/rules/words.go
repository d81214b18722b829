package rules

import (
	"fmt"

	"github.com/hearth-social/warden/automod"
	"github.com/hearth-social/warden/automod/keyword"
)

var _ automod.MessageRuleFunc = WordFilterRule

// Whole-word match of the configured word list against the message; the first listed word found decides.
func WordFilterRule(c *automod.MessageContext) error {
	cfg := c.Config.WordFilter
	if !cfg.Enabled || len(cfg.Words) == 0 || c.Message.AuthorCanManage || c.MessageRemoved() {
		return nil
	}
	word := keyword.MatcherFor(cfg.Words).Match(c.Message.Content)
	if word == "" {
		return nil
	}
	c.AddVerdict(automod.Verdict{
		Detector:      "word_filter",
		Reason:        fmt.Sprintf("used a filtered word (%q)", word),
		DeleteMessage: true,
		Action:        cfg.Action,
		Notify:        true,
	})
	return nil
}
