package engine

import (
	"time"

	"github.com/hearth-social/warden/automod/enforce"
)

// Outcome of one detector firing against one member.
type Verdict struct {
	// detector name, used for logging and audit (eg, "anti_spam")
	Detector string
	Reason   string
	// member the verdict applies to; defaults to the event's subject
	UserID string
	// delete the triggering message
	DeleteMessage bool
	// also delete the member's other messages in the channel within this lookback
	PurgeLookback time.Duration
	Action        enforce.Action
	// timeout length, for enforce.ActionTimeout
	Duration          time.Duration
	DeleteHistoryDays int
	// record a strike (when the strike system is enabled) and escalate if the ladder calls for it
	Strike bool
	// send the member a private notice regardless of action
	Notify  bool
	Details map[string]string
}

type SlowmodeChange struct {
	ChannelID string
	// zero turns slowmode off
	Delay time.Duration
}

// Mutable container for the side-effects of rule execution. Collected while rules run and applied by the engine afterwards.
type Effects struct {
	Verdicts []Verdict
	Slowmode []SlowmodeChange
	// quarantine role to assign to the joining member
	QuarantineRoleID   string
	QuarantineDuration time.Duration
	// replay the joining member's role backup
	RestoreRoles bool
}

func (e *Effects) AddVerdict(v Verdict) {
	e.Verdicts = append(e.Verdicts, v)
}

// Whether any verdict so far removes the triggering message.
func (e *Effects) MessageRemoved() bool {
	for _, v := range e.Verdicts {
		if v.DeleteMessage {
			return true
		}
	}
	return false
}
