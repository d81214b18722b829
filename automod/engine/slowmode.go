package engine

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type SlowmodeState struct {
	CommunityID string
	ChannelID   string
	Until       time.Time
}

// Channels on which the engine has switched slowmode on, and when it should come off again.
type SlowmodeTracker struct {
	channels *xsync.MapOf[string, SlowmodeState]
}

func NewSlowmodeTracker() *SlowmodeTracker {
	return &SlowmodeTracker{
		channels: xsync.NewMapOf[string, SlowmodeState](),
	}
}

func (t *SlowmodeTracker) Activate(communityID, channelID string, until time.Time) {
	t.channels.Store(channelID, SlowmodeState{CommunityID: communityID, ChannelID: channelID, Until: until})
}

func (t *SlowmodeTracker) Deactivate(channelID string) {
	t.channels.Delete(channelID)
}

func (t *SlowmodeTracker) Get(channelID string) (SlowmodeState, bool) {
	return t.channels.Load(channelID)
}

// Snapshot of channels whose slowmode end has passed.
func (t *SlowmodeTracker) Expired(now time.Time) []SlowmodeState {
	out := []SlowmodeState{}
	t.channels.Range(func(k string, st SlowmodeState) bool {
		if !now.Before(st.Until) {
			out = append(out, st)
		}
		return true
	})
	return out
}

func (t *SlowmodeTracker) Size() int {
	return t.channels.Size()
}
