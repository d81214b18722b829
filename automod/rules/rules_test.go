package rules

import (
	"context"
	"testing"
	"time"

	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/engine"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/hearth-social/warden/automod/setstore"
	"github.com/hearth-social/warden/automod/visual"
	"github.com/hearth-social/warden/automod/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleFixture() *engine.TestFixture {
	rs := DefaultRules()
	return engine.EngineTestFixture(&rs)
}

func TestDefaultRulesDisabled(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()

	evt := f.Message("m1", "u1", "join discord.gg/abc123 @everyone")
	evt.MentionEveryone = true
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	require.NoError(t, f.Engine.ProcessJoin(ctx, f.Join("u2")))
	assert.Empty(f.Platform.Calls)
	assert.Empty(f.Audit.Snapshot(""))
}

func TestAntiSpamRate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.AntiSpam.Enabled = true
	})

	for i, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m"+text, "u1", text)), i)
		f.Clock.Advance(500 * time.Millisecond)
	}
	assert.Empty(f.Platform.CallsFor("Timeout"))

	// another member's traffic is counted separately
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("x1", "u2", "hello")))
	assert.Empty(f.Platform.CallsFor("Timeout"))

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m5", "u1", "five")))
	timeouts := f.Platform.CallsFor("Timeout")
	require.Len(t, timeouts, 1)
	assert.Equal("u1", timeouts[0].User)
	assert.Equal(f.Clock.Now().Add(300*time.Second), timeouts[0].Until)
	assert.Len(f.Audit.Snapshot("anti_spam"), 2)

	// window was reset by the trigger
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m6", "u1", "six")))
	assert.Len(f.Platform.CallsFor("Timeout"), 1)
}

func TestAntiSpamDuplicates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.AntiSpam.Enabled = true
	})

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "free nitro")))
	f.Clock.Advance(4 * time.Second)
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m2", "u1", "free nitro")))
	f.Clock.Advance(4 * time.Second)
	assert.Empty(f.Platform.CallsFor("Timeout"))
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m3", "u1", "free nitro")))
	assert.Len(f.Platform.CallsFor("Timeout"), 1)

	recs := f.Audit.Snapshot("anti_spam")
	require.NotEmpty(t, recs)
	assert.Contains(recs[0].Reason, "repeated")
}

func TestAntiSpamWhitelistAndManagers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.AntiSpam.Enabled = true
		c.AntiSpam.WhitelistedChannels = []string{"c1"}
	})
	for i := 0; i < 6; i++ {
		require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m", "u1", "same")))
	}
	assert.Empty(f.Platform.Calls)

	f.Configure("g1", func(c *config.ModerationConfig) {
		c.AntiSpam.WhitelistedChannels = nil
	})
	for i := 0; i < 6; i++ {
		evt := f.Message("m", "mod", "same")
		evt.AuthorCanManage = true
		require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	}
	assert.Empty(f.Platform.Calls)
}

func TestDuplicateRun(t *testing.T) {
	assert := assert.New(t)
	mk := func(vals ...string) []window.Entry {
		out := []window.Entry{}
		for _, v := range vals {
			out = append(out, window.Entry{Value: v})
		}
		return out
	}
	assert.True(duplicateRun(mk("a", "b", "b", "b"), 3))
	assert.False(duplicateRun(mk("b", "b", "a"), 3))
	assert.False(duplicateRun(mk("b", "b"), 3))
	assert.False(duplicateRun(mk("", "", ""), 3))
	assert.False(duplicateRun(mk("a", "a"), 1))
}

func TestAntiRaid(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.AntiRaid.Enabled = true
		c.AntiRaid.JoinThreshold = 3
		c.AntiRaid.TimeWindow = 60
		c.Quarantine.Enabled = true
		c.Quarantine.RoleID = "quarantine"
	})

	require.NoError(t, f.Engine.ProcessJoin(ctx, f.Join("u1")))
	f.Clock.Advance(10 * time.Second)
	require.NoError(t, f.Engine.ProcessJoin(ctx, f.Join("u2")))
	assert.Empty(f.Platform.CallsFor("Kick"))
	assert.True(f.Platform.HasRole("g1", "u1", "quarantine"))

	f.Clock.Advance(10 * time.Second)
	require.NoError(t, f.Engine.ProcessJoin(ctx, f.Join("u3")))
	kicked := []string{}
	for _, c := range f.Platform.CallsFor("Kick") {
		kicked = append(kicked, c.User)
	}
	assert.ElementsMatch([]string{"u1", "u2", "u3"}, kicked)
	// the triggering member is actioned, not quarantined
	assert.False(f.Platform.HasRole("g1", "u3", "quarantine"))

	// window starts over after a raid
	f.Clock.Advance(time.Second)
	require.NoError(t, f.Engine.ProcessJoin(ctx, f.Join("u4")))
	assert.Len(f.Platform.CallsFor("Kick"), 3)
	assert.True(f.Platform.HasRole("g1", "u4", "quarantine"))
}

func TestAntiRaidOldJoinsExpire(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.AntiRaid.Enabled = true
		c.AntiRaid.JoinThreshold = 3
		c.AntiRaid.TimeWindow = 60
	})
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		require.NoError(t, f.Engine.ProcessJoin(ctx, f.Join(u)))
		f.Clock.Advance(45 * time.Second)
	}
	assert.Empty(f.Platform.CallsFor("Kick"))
}

func TestLinkFilter(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Sets.Add(setstore.SetPhishingDomains, "evil-login.com")
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.LinkFilter.Enabled = true
		c.LinkFilter.Whitelist = []string{"discord.gg/official"}
		c.LinkFilter.Blacklist = []string{"example.org"}
	})

	tests := []struct {
		text   string
		reason string
	}{
		{"check https://golang.org/doc", ""},
		{"come to discord.gg/official", ""},
		{"come to https://discord.gg/abc123", "community invite link"},
		{"see http://EXAMPLE.org/page", "blacklisted link"},
		{"verify at https://secure.evil-login.com/claim", "known phishing domain"},
		{"no links here.", ""},
	}
	for i, tc := range tests {
		f.Audit.Records = nil
		require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m", "u1", tc.text)), i)
		recs := f.Audit.Snapshot("link_filter")
		if tc.reason == "" {
			assert.Empty(recs, tc.text)
			continue
		}
		if assert.NotEmpty(recs, tc.text) {
			assert.Equal(tc.reason, recs[0].Reason, tc.text)
		}
	}
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 3)
}

func TestLinkFilterStrikes(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.LinkFilter.Enabled = true
		c.StrikesSystem.Enabled = true
	})

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "discord.gg/a")))
	assert.Empty(f.Platform.CallsFor("Timeout"))
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m2", "u1", "discord.gg/b")))
	timeouts := f.Platform.CallsFor("Timeout")
	require.Len(t, timeouts, 1)
	assert.Equal(f.Clock.Now().Add(enforce.StrikeTimeout), timeouts[0].Until)
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m3", "u1", "discord.gg/c")))
	bans := f.Platform.CallsFor("Ban")
	require.Len(t, bans, 1)
	assert.Equal("u1", bans[0].User)
}

func TestMentionSpam(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.MentionSpam.Enabled = true
	})

	evt := f.Message("m1", "u1", "hey")
	evt.Mentions = []string{"a", "a", "a", "a", "a", "a", "a"}
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Empty(f.Platform.Calls)

	evt = f.Message("m2", "u1", "hey")
	evt.Mentions = []string{"a", "b", "c", "d", "e", "f"}
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	timeouts := f.Platform.CallsFor("Timeout")
	require.Len(t, timeouts, 1)
	assert.Equal(f.Clock.Now().Add(600*time.Second), timeouts[0].Until)

	evt = f.Message("m3", "u2", "hey")
	evt.RoleMentions = []string{"r1", "r2", "r3", "r4"}
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Len(f.Platform.CallsFor("Timeout"), 2)

	evt = f.Message("m4", "u3", "hey")
	evt.MentionEveryone = true
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Len(f.Platform.CallsFor("Timeout"), 3)
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 3)
}

func TestMentionSpamStrikeLadder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.MentionSpam.Enabled = true
		c.StrikesSystem.Enabled = true
	})
	everyone := func(id string) engine.MessageEvent {
		evt := f.Message(id, "u1", "@everyone")
		evt.MentionEveryone = true
		return evt
	}

	// first strike keeps the detector timeout and still sends the warning notice
	require.NoError(t, f.Engine.ProcessMessage(ctx, everyone("m1")))
	assert.Len(f.Platform.CallsFor("SendDirect"), 1)
	timeouts := f.Platform.CallsFor("Timeout")
	require.Len(t, timeouts, 1)
	assert.Equal(f.Clock.Now().Add(600*time.Second), timeouts[0].Until)

	// second strike stretches the same action to the strike mute
	require.NoError(t, f.Engine.ProcessMessage(ctx, everyone("m2")))
	timeouts = f.Platform.CallsFor("Timeout")
	require.Len(t, timeouts, 2)
	assert.Equal(f.Clock.Now().Add(enforce.StrikeTimeout), timeouts[1].Until)

	require.NoError(t, f.Engine.ProcessMessage(ctx, everyone("m3")))
	bans := f.Platform.CallsFor("Ban")
	require.Len(t, bans, 1)
	assert.Equal("u1", bans[0].User)
}

func TestWordFilter(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.WordFilter.Enabled = true
		c.WordFilter.Words = []string{"darn", "heck off"}
	})

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "a darnation of darning")))
	assert.Empty(f.Platform.Calls)

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m2", "u1", "Well, DARN it!")))
	dels := f.Platform.CallsFor("DeleteMessage")
	require.Len(t, dels, 1)
	assert.Equal("m2", dels[0].Target)
	dms := f.Platform.CallsFor("SendDirect")
	require.Len(t, dms, 1)
	assert.Contains(dms[0].Text, "darn")

	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m3", "u1", "just heck off")))
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 2)
}

func TestContentRulesSkipRemovedMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.LinkFilter.Enabled = true
		c.WordFilter.Enabled = true
		c.WordFilter.Words = []string{"darn"}
	})
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m1", "u1", "darn discord.gg/abc")))
	assert.Len(f.Audit.Snapshot("link_filter"), 2)
	assert.Empty(f.Audit.Snapshot("word_filter"))
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 1)
}

type fakeClassifier struct {
	score float64
	err   error
	calls int
}

func (fc *fakeClassifier) Score(ctx context.Context, imageURL, apiKey string) (float64, error) {
	fc.calls++
	return fc.score, fc.err
}

func TestNSFWImage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	clf := &fakeClassifier{score: 0.95}
	f.Engine.Classifier = clf
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.NSFWDetection.Enabled = true
	})

	evt := f.Message("m1", "u1", "")
	evt.Attachments = []engine.Attachment{{URL: "https://cdn.example.com/notes.txt", Filename: "notes.txt"}}
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Equal(0, clf.calls)
	assert.Empty(f.Platform.Calls)

	evt = f.Message("m2", "u1", "")
	evt.Attachments = []engine.Attachment{{URL: "https://cdn.example.com/a.png", ContentType: "image/png"}}
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Equal(1, clf.calls)
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 1)

	clf.score = 0.3
	evt.MessageID = "m3"
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 1)

	// classifier outages never produce a verdict
	clf.score, clf.err = 0.99, visual.ErrServiceUnavailable
	evt.MessageID = "m4"
	require.NoError(t, f.Engine.ProcessMessage(ctx, evt))
	assert.Len(f.Platform.CallsFor("DeleteMessage"), 1)
}

func TestAutoSlowmode(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := ruleFixture()
	f.Configure("g1", func(c *config.ModerationConfig) {
		c.AutoSlowmode.Enabled = true
		c.AutoSlowmode.TriggerThreshold = 3
	})

	for _, u := range []string{"u1", "u2", "u3"} {
		require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m-"+u, u, "hi")))
		f.Clock.Advance(time.Second)
	}
	sm := f.Platform.CallsFor("SetSlowmode")
	require.Len(t, sm, 1)
	assert.Equal(5*time.Second, sm[0].Delay)
	assert.Equal("c1", sm[0].Channel)

	// already active; no repeat
	for _, u := range []string{"u4", "u5", "u6"} {
		require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m-"+u, u, "hi")))
	}
	assert.Len(f.Platform.CallsFor("SetSlowmode"), 1)

	f.Clock.Advance(301 * time.Second)
	require.NoError(t, f.Engine.ProcessMessage(ctx, f.Message("m7", "u7", "hi")))
	sm = f.Platform.CallsFor("SetSlowmode")
	require.Len(t, sm, 2)
	assert.Equal(time.Duration(0), sm[1].Delay)
}
