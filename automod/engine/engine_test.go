package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearth-social/warden/automod/audit"
	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/hearth-social/warden/automod/strikes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture(nil)

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "hello")))
	assert.Empty(f.Audit.Snapshot(""))

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m2", "u1", "slur")))
	dels := f.Platform.CallsFor("DeleteMessage")
	require.Len(t, dels, 1)
	assert.Equal("m2", dels[0].Target)

	recs := f.Audit.Snapshot("simple")
	require.Len(t, recs, 2)
	assert.Equal(audit.OutcomeDetected, recs[0].Outcome)
	assert.Equal(audit.OutcomeApplied, recs[1].Outcome)
	assert.Equal("warn", recs[1].Action)
	assert.Len(f.Platform.CallsFor("SendDirect"), 1)
}

func TestBotsIgnored(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture(nil)

	evt := f.Message("m1", "bot", "slur")
	evt.AuthorIsBot = true
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Empty(f.Platform.Calls)
}

func TestRuleIsolation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ran := false
	f := EngineTestFixture(&RuleSet{
		MessageRules: []MessageRule{
			{Name: "panics", Func: func(c *MessageContext) error {
				var m map[string]int
				m["boom"] = 1
				return nil
			}},
			{Name: "errors", Func: func(c *MessageContext) error {
				return errors.New("detector broke")
			}},
			{Name: "simple", Func: func(c *MessageContext) error {
				ran = true
				return simpleRule(c)
			}},
		},
	})
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "slur")))
	assert.True(ran)
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 1)
}

func TestStrikeEscalation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture(nil)
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.StrikesSystem.Enabled = true
	})

	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message(id, "u1", "slur")))
		n, err := f.Engine.Strikes.GetActiveStrikes(ctx, "u1", "g1")
		require.NoError(t, err)
		assert.Equal(i+1, n)
	}

	// first strike is the verdict's own warning, second escalates to the 24h mute, third bans
	timeouts := f.Platform.CallsFor("Timeout")
	require.Len(t, timeouts, 1)
	assert.Equal(f.Clock.Now().Add(24*time.Hour), timeouts[0].Until)
	bans := f.Platform.CallsFor("Ban")
	require.Len(t, bans, 1)
	assert.Equal("u1", bans[0].User)
}

func TestStrikesDisabled(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture(nil)

	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message(id, "u1", "slur")))
	}
	n, err := f.Engine.Strikes.GetActiveStrikes(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Equal(0, n)
	assert.Empty(f.Platform.CallsFor("Ban"))
}

func TestPermissionFailureContinues(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture(nil)

	f.Platform.SetFail("DeleteMessage", enforce.ErrPermissionDenied)
	f.Platform.SetFail("SendDirect", errors.New("dms closed"))
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "slur")))
	recs := f.Audit.Snapshot("simple")
	require.Len(t, recs, 2)
	assert.Equal(audit.OutcomeApplied, recs[1].Outcome, "warn still recorded when the notice bounces")
}

func TestSlowmodeSweep(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(&RuleSet{
		MessageRules: []MessageRule{
			{Name: "always_slow", Func: func(c *MessageContext) error {
				if _, ok := c.SlowmodeUntil(); !ok {
					c.EnableSlowmode(5*time.Second, c.Now().Add(time.Minute))
				}
				return nil
			}},
		},
	})
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "hi")))
	calls := f.Platform.CallsFor("SetSlowmode")
	require.Len(t, calls, 1)
	assert.Equal(5*time.Second, calls[0].Delay)

	f.Engine.Sweep(ctx)
	assert.Len(f.Platform.CallsFor("SetSlowmode"), 1, "not expired yet")

	f.Clock.Advance(time.Minute)
	f.Engine.Sweep(ctx)
	calls = f.Platform.CallsFor("SetSlowmode")
	require.Len(t, calls, 2)
	assert.Equal(time.Duration(0), calls[1].Delay)
	assert.Equal(0, f.Engine.Slowmode.Size())
}

func TestBanBackupAndRejoinRestore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := EngineTestFixture(&RuleSet{
		JoinRules: []JoinRule{
			{Name: "restore", Func: func(c *JoinContext) error {
				if c.Config.RoleBackup.Enabled && c.Config.RoleBackup.RestoreOnUnban {
					c.RestoreRoles()
				}
				return nil
			}},
		},
	})
	f.Platform.CommunityRoles["g1"] = []enforce.Role{
		{ID: "g1", Position: 0, Default: true},
		{ID: "r-member", Position: 5},
	}

	// disabled: nothing is backed up
	require.NoError(t, f.Engine.ProcessBan(ctx, BanEvent{CommunityID: "g1", UserID: "u1", RoleIDs: []string{"g1", "r-member"}}))
	require.NoError(t, f.Engine.ProcessJoin(ctx, f.Join("u1")))
	assert.False(f.Platform.HasRole("g1", "u1", "r-member"))

	f.Configure("g1", func(c *config.ModerationConfig) {
		c.RoleBackup.Enabled = true
	})
	require.NoError(t, f.Engine.ProcessEvent(ctx, Event{Ban: &BanEvent{CommunityID: "g1", UserID: "u1", RoleIDs: []string{"g1", "r-member"}}}))
	join := f.Join("u1")
	require.NoError(t, f.Engine.ProcessEvent(ctx, Event{Join: &join}))
	assert.True(f.Platform.HasRole("g1", "u1", "r-member"))
	assert.Len(f.Audit.Snapshot("role_backup"), 1)
}

func TestManualActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture(nil)
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.StrikesSystem.Enabled = true
		c.StrikesSystem.StrikesToBan = 2
	})

	out := f.Engine.Enforce(ctx, enforce.Request{CommunityID: "g1", UserID: "u1", Action: enforce.ActionKick, ModeratorID: "mod"})
	assert.True(out.Applied)
	recs := f.Audit.Snapshot("manual")
	require.Len(t, recs, 1)
	assert.Equal("mod", recs[0].ModeratorID)

	n, out, err := f.Engine.AddManualStrike(ctx, "g1", "u2", "mod", "rude")
	require.NoError(t, err)
	assert.Equal(1, n)
	assert.Equal(enforce.ActionWarn, out.Action)

	n, out, err = f.Engine.AddManualStrike(ctx, "g1", "u2", "mod", "rude again")
	require.NoError(t, err)
	assert.Equal(2, n)
	assert.Equal(enforce.ActionBan, out.Action)
	assert.Len(f.Platform.CallsFor("Ban"), 1)
}

func TestEventEnvelope(t *testing.T) {
	assert := assert.New(t)

	m := MessageEvent{CommunityID: "g1"}
	assert.Equal("g1", Event{Message: &m}.CommunityID())
	assert.Equal("", Event{}.CommunityID())
	assert.Error(EngineTestFixture(nil).Engine.ProcessEvent(context.Background(), Event{}))
}

func TestAttachmentIsImage(t *testing.T) {
	assert := assert.New(t)

	assert.True(Attachment{ContentType: "image/png"}.IsImage())
	assert.False(Attachment{ContentType: "video/mp4", Filename: "x.png"}.IsImage())
	assert.True(Attachment{Filename: "Cat.JPG"}.IsImage())
	assert.False(Attachment{Filename: "notes.txt"}.IsImage())
}

func TestEscalateMerge(t *testing.T) {
	assert := assert.New(t)

	mute := strikes.Escalation{Action: enforce.ActionTimeout, Duration: enforce.StrikeTimeout, Reason: "strike 2 of 3"}
	action, d, reason := escalate(enforce.ActionTimeout, 10*time.Minute, "mass mention", mute)
	assert.Equal(enforce.ActionTimeout, action)
	assert.Equal(enforce.StrikeTimeout, d)
	assert.Equal("mass mention (strike 2 of 3)", reason)

	// a detector timeout already longer than the strike mute is kept
	action, d, _ = escalate(enforce.ActionTimeout, 48*time.Hour, "mass mention", mute)
	assert.Equal(enforce.ActionTimeout, action)
	assert.Equal(48*time.Hour, d)

	action, _, _ = escalate(enforce.ActionKick, 0, "invite", mute)
	assert.Equal(enforce.ActionKick, action)

	action, _, _ = escalate(enforce.ActionWarn, 0, "invite", strikes.Escalation{Action: enforce.ActionBan})
	assert.Equal(enforce.ActionBan, action)
}
