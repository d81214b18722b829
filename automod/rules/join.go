package rules

import (
	"github.com/hearth-social/warden/automod"
)

var _ automod.JoinRuleFunc = QuarantineJoinRule
var _ automod.JoinRuleFunc = RestoreRolesJoinRule

// Places new members in the quarantine role for the configured time. Members already actioned by another rule for this join are skipped.
func QuarantineJoinRule(c *automod.JoinContext) error {
	cfg := c.Config.Quarantine
	if !cfg.Enabled || cfg.RoleID == "" || c.HasVerdictFor(c.Join.UserID) {
		return nil
	}
	c.QuarantineMember(cfg.RoleID, cfg.Duration())
	return nil
}

// Re-applies a returning member's roles from their most recent ban-time backup.
func RestoreRolesJoinRule(c *automod.JoinContext) error {
	cfg := c.Config.RoleBackup
	if !cfg.Enabled || !cfg.RestoreOnUnban || c.HasVerdictFor(c.Join.UserID) {
		return nil
	}
	c.RestoreRoles()
	return nil
}
