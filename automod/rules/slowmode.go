package rules

import (
	"github.com/hearth-social/warden/automod"
	"github.com/hearth-social/warden/automod/window"
)

const slowmodeWindowName = "channel-messages"

var _ automod.MessageRuleFunc = AutoSlowmodeRule

// Turns slowmode on for a channel whose message rate crosses the threshold, and off again once its time is up (checked on each later message; the engine sweep covers channels that went quiet).
func AutoSlowmodeRule(c *automod.MessageContext) error {
	cfg := c.Config.AutoSlowmode
	if !cfg.Enabled {
		return nil
	}
	if until, ok := c.SlowmodeUntil(); ok {
		if c.Now().Before(until) {
			return nil
		}
		c.DisableSlowmode()
	}

	key := c.Message.CommunityID + "/" + c.Message.ChannelID
	n := c.RecordWindow(slowmodeWindowName, key, window.Entry{At: c.Now(), Member: c.Message.AuthorID}, cfg.Window())
	if c.Err != nil {
		return c.Err
	}
	if n < cfg.TriggerThreshold {
		return nil
	}
	c.ResetWindow(slowmodeWindowName, key)
	c.Logger.Info("enabling automatic slowmode", "messages", n, "delay", cfg.Delay(), "for", cfg.Lifetime())
	c.EnableSlowmode(cfg.Delay(), c.Now().Add(cfg.Lifetime()))
	return nil
}
