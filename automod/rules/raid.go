package rules

import (
	"fmt"

	"github.com/hearth-social/warden/automod"
	"github.com/hearth-social/warden/automod/helpers"
	"github.com/hearth-social/warden/automod/window"
)

const raidWindowName = "community-joins"

var _ automod.JoinRuleFunc = AntiRaidRule

// When joins within the window reach the threshold, acts on every member who joined inside that window, then clears it.
func AntiRaidRule(c *automod.JoinContext) error {
	cfg := c.Config.AntiRaid
	if !cfg.Enabled {
		return nil
	}
	key := c.Join.CommunityID
	n := c.RecordWindow(raidWindowName, key, window.Entry{At: c.Now(), Member: c.Join.UserID}, cfg.Window())
	if c.Err != nil {
		return c.Err
	}
	if n < cfg.JoinThreshold {
		return nil
	}

	entries := c.WindowEntries(raidWindowName, key, cfg.Window())
	c.ResetWindow(raidWindowName, key)
	if c.Err != nil {
		return c.Err
	}

	members := make([]string, 0, len(entries))
	for _, e := range entries {
		members = append(members, e.Member)
	}
	members = helpers.DedupeStrings(members)
	c.Logger.Warn("raid detected", "joins", n, "window_sec", cfg.TimeWindow, "members", len(members))
	reason := fmt.Sprintf("raid: %d joins within %ds", n, cfg.TimeWindow)
	for _, m := range members {
		c.AddVerdict(automod.Verdict{
			Detector: "anti_raid",
			Reason:   reason,
			UserID:   m,
			Action:   cfg.Action,
		})
	}
	return nil
}
