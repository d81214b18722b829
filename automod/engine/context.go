package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/visual"
	"github.com/hearth-social/warden/automod/window"
)

// The primary interface exposed to rules. All other contexts derive from this "base" struct.
type BaseContext struct {
	// Actual golang "context.Context", if needed for timeouts etc
	Ctx context.Context
	// Any errors encountered while processing methods on this struct (or sub-types) get rolled up in this nullable field. Reset between rules.
	Err error
	// slog logger handle, with event-specific structured fields pre-populated. Pointer, but expected to never be nil.
	Logger *slog.Logger
	// Moderation config for the event's community. Shared; must not be modified.
	Config *config.ModerationConfig

	engine  *Engine // NOTE: pointer, but expected never to be nil
	effects *Effects
	subject subject
	now     time.Time
}

// who and where an event is about
type subject struct {
	communityID string
	channelID   string
	messageID   string
	userID      string
}

type MessageContext struct {
	BaseContext

	Message MessageEvent
}

type JoinContext struct {
	BaseContext

	Join JoinEvent
}

func (c *BaseContext) setErr(err error) {
	if c.Err == nil {
		c.Err = err
	}
}

// Time of the event being processed.
func (c *BaseContext) Now() time.Time {
	return c.now
}

// Appends to a sliding window immediately (not deferred to the end of rule execution) and returns the in-window count, including this entry.
func (c *BaseContext) RecordWindow(name, key string, e window.Entry, retention time.Duration) int {
	if e.At.IsZero() {
		e.At = c.now
	}
	n, err := c.engine.Windows.Record(c.Ctx, name, key, e, retention)
	if err != nil {
		c.setErr(err)
		return 0
	}
	return n
}

func (c *BaseContext) WindowEntries(name, key string, retention time.Duration) []window.Entry {
	out, err := c.engine.Windows.Entries(c.Ctx, name, key, c.now, retention)
	if err != nil {
		c.setErr(err)
		return nil
	}
	return out
}

func (c *BaseContext) ResetWindow(name, key string) {
	if err := c.engine.Windows.Reset(c.Ctx, name, key); err != nil {
		c.setErr(err)
	}
}

func (c *BaseContext) InSet(name, val string) bool {
	out, err := c.engine.Sets.InSet(c.Ctx, name, val)
	if err != nil {
		c.setErr(err)
		return false
	}
	return out
}

// Scores an image with the configured classifier. Returns false when there is no classifier or the service did not answer; callers must treat that as "no verdict".
func (c *BaseContext) ClassifyImage(url, apiKey string) (float64, bool) {
	if c.engine.Classifier == nil {
		return 0, false
	}
	score, err := c.engine.Classifier.Score(c.Ctx, url, apiKey)
	if err != nil {
		if errors.Is(err, visual.ErrServiceUnavailable) {
			c.Logger.Info("image classifier unavailable, skipping", "err", err)
		} else {
			c.Logger.Warn("image classification failed", "err", err)
		}
		classifierFailOpen.Inc()
		return 0, false
	}
	return score, true
}

// Enqueues a verdict to be enforced at the end of rule processing.
func (c *BaseContext) AddVerdict(v Verdict) {
	if v.UserID == "" {
		v.UserID = c.subject.userID
	}
	c.Logger.Info("detector verdict", "detector", v.Detector, "target", v.UserID, "action", v.Action, "reason", v.Reason)
	detectorHits.WithLabelValues(v.Detector).Inc()
	c.effects.AddVerdict(v)
}

// Whether a verdict has already been enqueued against userID while processing this event.
func (c *BaseContext) HasVerdictFor(userID string) bool {
	for _, v := range c.effects.Verdicts {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

func (c *MessageContext) MessageRemoved() bool {
	return c.effects.MessageRemoved()
}

// When slowmode was switched on for the message's channel, whether it is still tracked as active, and its scheduled end.
func (c *MessageContext) SlowmodeUntil() (time.Time, bool) {
	st, ok := c.engine.Slowmode.Get(c.Message.ChannelID)
	if !ok {
		return time.Time{}, false
	}
	return st.Until, true
}

// Marks slowmode active right away and enqueues the platform change.
func (c *MessageContext) EnableSlowmode(delay time.Duration, until time.Time) {
	c.engine.Slowmode.Activate(c.Message.CommunityID, c.Message.ChannelID, until)
	c.effects.Slowmode = append(c.effects.Slowmode, SlowmodeChange{ChannelID: c.Message.ChannelID, Delay: delay})
}

func (c *MessageContext) DisableSlowmode() {
	c.engine.Slowmode.Deactivate(c.Message.ChannelID)
	c.effects.Slowmode = append(c.effects.Slowmode, SlowmodeChange{ChannelID: c.Message.ChannelID})
}

func (c *JoinContext) QuarantineMember(roleID string, d time.Duration) {
	c.effects.QuarantineRoleID = roleID
	c.effects.QuarantineDuration = d
}

func (c *JoinContext) RestoreRoles() {
	c.effects.RestoreRoles = true
}
