package enforce

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hearth-social/warden/automod/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecutor() (*Executor, *MockPlatform, *audit.MemSink, time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewMockPlatform()
	sink := &audit.MemSink{}
	x := NewExecutor(p, sink, nil)
	x.Clock = func() time.Time { return now }
	return x, p, sink, now
}

func TestApplyActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	x, p, sink, now := testExecutor()

	out := x.Apply(ctx, Request{CommunityID: "g1", UserID: "u1", Action: ActionWarn, Reason: "be nice", Source: "word_filter"})
	assert.True(out.Applied)
	require.Len(t, p.CallsFor("SendDirect"), 1)
	assert.Contains(p.CallsFor("SendDirect")[0].Text, "be nice")

	out = x.Apply(ctx, Request{CommunityID: "g1", UserID: "u1", Action: ActionTimeout, Duration: time.Hour, Source: "anti_spam"})
	assert.True(out.Applied)
	require.Len(t, p.CallsFor("Timeout"), 1)
	assert.Equal(now.Add(time.Hour), p.CallsFor("Timeout")[0].Until)

	out = x.Apply(ctx, Request{CommunityID: "g1", UserID: "u2", Action: ActionTimeout, Source: "manual"})
	assert.True(out.Applied)
	assert.Equal(now.Add(DefaultTimeout), p.CallsFor("Timeout")[1].Until)

	x.Apply(ctx, Request{CommunityID: "g1", UserID: "u3", Action: ActionKick, Source: "anti_raid"})
	x.Apply(ctx, Request{CommunityID: "g1", UserID: "u4", Action: ActionBan, DeleteHistoryDays: 1, Source: "strikes"})
	assert.Len(p.CallsFor("Kick"), 1)
	require.Len(t, p.CallsFor("Ban"), 1)
	assert.Equal(1, p.CallsFor("Ban")[0].Days)

	recs := sink.Snapshot("")
	assert.Len(recs, 5)
	for _, r := range recs {
		assert.Equal(audit.OutcomeApplied, r.Outcome)
		assert.NotEmpty(r.ID)
		assert.Equal(now, r.At)
	}

	// none is a no-op without an audit record of its own
	out = x.Apply(ctx, Request{CommunityID: "g1", UserID: "u5", Action: ActionNone})
	assert.True(out.Applied)
	assert.Len(sink.Snapshot(""), 5)
}

func TestApplyPermissionDenied(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	x, p, sink, _ := testExecutor()

	p.SetFail("Ban", fmt.Errorf("banning: %w", ErrPermissionDenied))
	p.SetFail("SendDirect", fmt.Errorf("dms closed"))
	out := x.Apply(ctx, Request{CommunityID: "g1", UserID: "u1", Action: ActionBan, Notify: true, Source: "manual", ModeratorID: "mod-1"})
	assert.False(out.Applied)
	assert.ErrorIs(out.Err, ErrPermissionDenied)

	recs := sink.Snapshot("manual")
	require.Len(t, recs, 1)
	assert.Equal(audit.OutcomeFailed, recs[0].Outcome)
	assert.Equal("mod-1", recs[0].ModeratorID)
	assert.Contains(recs[0].Error, "permission denied")
}

func TestDeleteAndPurge(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	x, p, _, now := testExecutor()

	p.Messages = []Message{
		{ID: "m1", ChannelID: "c1", AuthorID: "u1", CreatedAt: now.Add(-time.Minute)},
		{ID: "m2", ChannelID: "c1", AuthorID: "u1", CreatedAt: now.Add(-5 * time.Second)},
		{ID: "m3", ChannelID: "c1", AuthorID: "u2", CreatedAt: now.Add(-4 * time.Second)},
		{ID: "m4", ChannelID: "c1", AuthorID: "u1", CreatedAt: now.Add(-time.Second)},
		{ID: "m5", ChannelID: "c2", AuthorID: "u1", CreatedAt: now.Add(-time.Second)},
	}
	n, err := x.PurgeRecent(ctx, "c1", "u1", 10*time.Second)
	assert.NoError(err)
	assert.Equal(2, n)

	left := []string{}
	for _, m := range p.Messages {
		left = append(left, m.ID)
	}
	assert.Equal([]string{"m1", "m3", "m5"}, left)

	p.SetFail("DeleteMessage", fmt.Errorf("gone: %w", ErrNotFound))
	assert.NoError(x.DeleteMessage(ctx, "c1", "m1"))
	p.SetFail("DeleteMessage", fmt.Errorf("gateway timeout"))
	assert.Error(x.DeleteMessage(ctx, "c1", "m1"))
}

func TestParseAction(t *testing.T) {
	assert := assert.New(t)

	a, ok := ParseAction("kick")
	assert.True(ok)
	assert.Equal(ActionKick, a)
	_, ok = ParseAction("smite")
	assert.False(ok)
}
