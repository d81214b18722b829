package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hearth-social/warden/automod"
	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/helpers"
	"github.com/hearth-social/warden/automod/window"
)

const (
	spamWindowName = "user-messages"
	// duplicate detection looks back at least this far, regardless of the rate window
	duplicateRetention = time.Minute
	// channel history removed when a member trips the spam detector
	spamPurgeLookback = 10 * time.Second
)

var _ automod.MessageRuleFunc = AntiSpamRule

// Flags members who send too many messages within the configured window, or repeat the same message several times in a row.
func AntiSpamRule(c *automod.MessageContext) error {
	cfg := c.Config.AntiSpam
	if !cfg.Enabled || c.Message.AuthorCanManage || config.ChannelAllowed(cfg.WhitelistedChannels, c.Message.ChannelID) {
		return nil
	}

	key := c.Message.CommunityID + "/" + c.Message.AuthorID
	retention := max(cfg.Window(), duplicateRetention)
	val := ""
	if strings.TrimSpace(c.Message.Content) != "" {
		val = helpers.HashOfString(c.Message.Content)
	}
	c.RecordWindow(spamWindowName, key, window.Entry{At: c.Now(), Member: c.Message.MessageID, Value: val}, retention)
	entries := c.WindowEntries(spamWindowName, key, retention)
	if c.Err != nil {
		return c.Err
	}

	cutoff := c.Now().Add(-cfg.Window())
	recent := 0
	for _, e := range entries {
		if !e.At.Before(cutoff) {
			recent++
		}
	}

	var reason string
	switch {
	case recent >= cfg.MessageThreshold:
		reason = fmt.Sprintf("sent %d messages within %ds", recent, cfg.TimeWindow)
	case duplicateRun(entries, cfg.DuplicateThreshold):
		reason = fmt.Sprintf("repeated the same message %d times", cfg.DuplicateThreshold)
	default:
		return nil
	}

	// one trigger per burst: the next message starts a fresh window
	c.ResetWindow(spamWindowName, key)
	c.AddVerdict(automod.Verdict{
		Detector:      "anti_spam",
		Reason:        reason,
		DeleteMessage: true,
		PurgeLookback: spamPurgeLookback,
		Action:        cfg.Action,
		Duration:      cfg.Timeout(),
		Details:       map[string]string{"recent": strconv.Itoa(recent)},
	})
	return nil
}

// whether the last n entries carry the same non-empty content hash
func duplicateRun(entries []window.Entry, n int) bool {
	if n < 2 || len(entries) < n {
		return false
	}
	tail := entries[len(entries)-n:]
	first := tail[0].Value
	if first == "" {
		return false
	}
	for _, e := range tail[1:] {
		if e.Value != first {
			return false
		}
	}
	return true
}
