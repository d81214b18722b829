package rules

import (
	"fmt"

	"github.com/hearth-social/warden/automod"
	"github.com/hearth-social/warden/automod/config"
)

var _ automod.MessageRuleFunc = NSFWImageRule

// Scores each image attachment with the external classifier. Classifier outages produce no verdict.
func NSFWImageRule(c *automod.MessageContext) error {
	cfg := c.Config.NSFWDetection
	if !cfg.Enabled || c.Message.AuthorCanManage || c.MessageRemoved() || config.ChannelAllowed(cfg.WhitelistedChannels, c.Message.ChannelID) {
		return nil
	}
	for _, a := range c.Message.Attachments {
		if !a.IsImage() {
			continue
		}
		score, ok := c.ClassifyImage(a.URL, cfg.APIKey)
		if !ok || score < cfg.ConfidenceThreshold {
			continue
		}
		c.AddVerdict(automod.Verdict{
			Detector:      "nsfw_detection",
			Reason:        fmt.Sprintf("explicit image (confidence %.2f)", score),
			DeleteMessage: true,
			Action:        cfg.Action,
			Details:       map[string]string{"attachment": a.URL},
		})
		return nil
	}
	return nil
}
