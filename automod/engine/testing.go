package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hearth-social/warden/automod/audit"
	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/hearth-social/warden/automod/quarantine"
	"github.com/hearth-social/warden/automod/rolebackup"
	"github.com/hearth-social/warden/automod/setstore"
	"github.com/hearth-social/warden/automod/strikes"
	"github.com/hearth-social/warden/automod/window"
)

var _ MessageRuleFunc = simpleRule

func simpleRule(c *MessageContext) error {
	if c.InSet("bad-words", c.Message.Content) {
		c.AddVerdict(Verdict{
			Detector:      "simple",
			Reason:        "bad word",
			DeleteMessage: true,
			Action:        enforce.ActionWarn,
			Strike:        true,
		})
	}
	return nil
}

// Manually advanced clock shared by every component of a test fixture.
type TestClock struct {
	lk  sync.Mutex
	now time.Time
}

func NewTestClock(start time.Time) *TestClock {
	return &TestClock{now: start}
}

func (c *TestClock) Now() time.Time {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.now
}

func (c *TestClock) Advance(d time.Duration) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.now = c.now.Add(d)
}

type TestFixture struct {
	Engine   *Engine
	Platform *enforce.MockPlatform
	Audit    *audit.MemSink
	Configs  *config.MemStore
	Sets     *setstore.MemSetStore
	Clock    *TestClock
}

// Engine wired entirely to in-memory stores and a mock platform. A nil rule set gets a single simple rule matching the "bad-words" set.
func EngineTestFixture(rules *RuleSet) *TestFixture {
	if rules == nil {
		rules = &RuleSet{
			MessageRules: []MessageRule{
				{Name: "simple", Func: simpleRule},
			},
		}
	}
	clk := NewTestClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.Default()
	p := enforce.NewMockPlatform()
	sink := &audit.MemSink{}
	sets := setstore.NewMemSetStore()
	sets.Add("bad-words", "slur")
	cfgStore := config.NewMemStore()

	exec := enforce.NewExecutor(p, sink, logger)
	exec.Clock = clk.Now
	ledger := strikes.NewLedger(strikes.NewMemStore(), logger)
	ledger.Clock = clk.Now
	backups := rolebackup.NewService(rolebackup.NewMemStore(), p, logger)
	backups.Clock = clk.Now
	q := quarantine.NewService(p, logger)
	q.Clock = clk.Now

	eng := &Engine{
		Logger:     logger,
		Rules:      *rules,
		Windows:    window.NewMemWindowStore(),
		Sets:       sets,
		Configs:    config.NewRegistry(cfgStore, logger),
		Executor:   exec,
		Strikes:    ledger,
		Backups:    backups,
		Quarantine: q,
		Slowmode:   NewSlowmodeTracker(),
		Clock:      clk.Now,
	}
	return &TestFixture{
		Engine:   eng,
		Platform: p,
		Audit:    sink,
		Configs:  cfgStore,
		Sets:     sets,
		Clock:    clk,
	}
}

// Updates the live config for a community; panics on invalid changes.
func (f *TestFixture) Configure(communityID string, fn func(c *config.ModerationConfig)) *config.ModerationConfig {
	c, err := f.Engine.Configs.Update(context.Background(), communityID, func(c *config.ModerationConfig) error {
		fn(c)
		return nil
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Message in community "g1", channel "c1", stamped with the fixture clock.
func (f *TestFixture) Message(id, author, content string) MessageEvent {
	return MessageEvent{
		CommunityID: "g1",
		ChannelID:   "c1",
		MessageID:   id,
		AuthorID:    author,
		Content:     content,
		CreatedAt:   f.Clock.Now(),
	}
}

func (f *TestFixture) Join(user string) JoinEvent {
	return JoinEvent{
		CommunityID: "g1",
		UserID:      user,
		JoinedAt:    f.Clock.Now(),
	}
}
