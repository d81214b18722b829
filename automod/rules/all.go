package rules

import (
	"github.com/hearth-social/warden/automod"
)

// The full detector set, in evaluation order. Channel-level slowmode runs first so that it counts every message; content detectors skip messages an earlier detector already removed.
func DefaultRules() automod.RuleSet {
	rules := automod.RuleSet{
		MessageRules: []automod.MessageRule{
			{Name: "auto_slowmode", Func: AutoSlowmodeRule},
			{Name: "anti_spam", Func: AntiSpamRule},
			{Name: "link_filter", Func: LinkFilterRule},
			{Name: "mention_spam", Func: MentionSpamRule},
			{Name: "word_filter", Func: WordFilterRule},
			{Name: "nsfw_detection", Func: NSFWImageRule},
		},
		JoinRules: []automod.JoinRule{
			{Name: "anti_raid", Func: AntiRaidRule},
			{Name: "quarantine", Func: QuarantineJoinRule},
			{Name: "role_restore", Func: RestoreRolesJoinRule},
		},
	}
	return rules
}
