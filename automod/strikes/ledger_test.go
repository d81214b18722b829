package strikes

import (
	"context"
	"testing"
	"time"

	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func testPolicy() config.StrikesConfig {
	return config.Default("g1").StrikesSystem
}

func testStores(t *testing.T) map[string]Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqldb, err := db.DB()
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	gs, err := NewGormStore(db)
	require.NoError(t, err)
	return map[string]Store{
		"mem":  NewMemStore(),
		"gorm": gs,
	}
}

func TestEscalationLadder(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			clk := &testClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
			l := NewLedger(store, nil)
			l.Clock = clk.Now
			policy := testPolicy()

			n, esc, err := l.AddStrike(ctx, "u1", "g1", "mod", "spam", policy)
			require.NoError(t, err)
			assert.Equal(1, n)
			assert.Equal(enforce.ActionWarn, esc.Action)

			n, esc, err = l.AddStrike(ctx, "u1", "g1", "mod", "spam", policy)
			require.NoError(t, err)
			assert.Equal(2, n)
			assert.Equal(enforce.ActionTimeout, esc.Action)
			assert.Equal(24*time.Hour, esc.Duration)

			n, esc, err = l.AddStrike(ctx, "u1", "g1", "mod", "spam", policy)
			require.NoError(t, err)
			assert.Equal(3, n)
			assert.Equal(enforce.ActionBan, esc.Action)

			// other pairs are independent
			n, _, err = l.AddStrike(ctx, "u1", "g2", "mod", "spam", policy)
			require.NoError(t, err)
			assert.Equal(1, n)
			n, _, err = l.AddStrike(ctx, "u2", "g1", "mod", "spam", policy)
			require.NoError(t, err)
			assert.Equal(1, n)
		})
	}
}

func TestStrikeExpiry(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			clk := &testClock{now: start}
			l := NewLedger(store, nil)
			l.Clock = clk.Now
			policy := testPolicy()

			_, _, err := l.AddStrike(ctx, "u1", "g1", "", "links", policy)
			require.NoError(t, err)
			clk.now = start.Add(10 * 24 * time.Hour)
			_, _, err = l.AddStrike(ctx, "u1", "g1", "", "links", policy)
			require.NoError(t, err)

			n, err := l.GetActiveStrikes(ctx, "u1", "g1")
			require.NoError(t, err)
			assert.Equal(2, n)

			// first strike lapses, second still live
			clk.now = start.Add(31 * 24 * time.Hour)
			n, err = l.GetActiveStrikes(ctx, "u1", "g1")
			require.NoError(t, err)
			assert.Equal(1, n)

			clk.now = start.Add(41 * 24 * time.Hour)
			n, err = l.GetActiveStrikes(ctx, "u1", "g1")
			require.NoError(t, err)
			assert.Equal(0, n)

			// expired strikes are kept as inactive history
			hist, err := l.History(ctx, "u1", "g1")
			require.NoError(t, err)
			require.Len(t, hist, 2)
			for _, r := range hist {
				assert.False(r.Active)
			}

			// a fresh strike starts the ladder over
			n, esc, err := l.AddStrike(ctx, "u1", "g1", "", "links", policy)
			require.NoError(t, err)
			assert.Equal(1, n)
			assert.Equal(enforce.ActionWarn, esc.Action)
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			l := NewLedger(store, nil)
			policy := testPolicy()

			for i := 0; i < 2; i++ {
				_, _, err := l.AddStrike(ctx, "u1", "g1", "mod", "words", policy)
				require.NoError(t, err)
			}
			_, _, err := l.AddStrike(ctx, "u9", "g1", "mod", "words", policy)
			require.NoError(t, err)

			cleared, err := l.Clear(ctx, "u1", "g1")
			require.NoError(t, err)
			assert.Equal(2, cleared)

			n, err := l.GetActiveStrikes(ctx, "u1", "g1")
			require.NoError(t, err)
			assert.Equal(0, n)
			n, err = l.GetActiveStrikes(ctx, "u9", "g1")
			require.NoError(t, err)
			assert.Equal(1, n)

			hist, err := l.History(ctx, "u1", "g1")
			require.NoError(t, err)
			assert.Len(hist, 2)
			assert.Equal(2, hist[0].StrikeCount, "newest first")
		})
	}
}

func TestPolicy(t *testing.T) {
	assert := assert.New(t)

	cfg := config.StrikesConfig{
		StrikesToBan: 3,
		ProgressiveActions: map[int]enforce.Action{
			1: enforce.ActionKick,
			3: enforce.ActionWarn,
		},
	}
	assert.Equal(enforce.ActionKick, Policy(1, cfg).Action)
	assert.Equal(enforce.ActionNone, Policy(2, cfg).Action)
	assert.Equal(enforce.ActionBan, Policy(3, cfg).Action, "strikes_to_ban wins over a progressive step")
	assert.Equal(enforce.ActionBan, Policy(4, cfg).Action)
}
