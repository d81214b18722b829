// Structured records of every detection and enforcement attempt, and the sinks which deliver them.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome of an enforcement attempt, as recorded in the audit trail.
type Outcome string

const (
	OutcomeDetected Outcome = "detected"
	OutcomeApplied  Outcome = "applied"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

type Record struct {
	ID          string            `json:"id"`
	At          time.Time         `json:"at"`
	CommunityID string            `json:"community_id"`
	UserID      string            `json:"user_id,omitempty"`
	ChannelID   string            `json:"channel_id,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	ModeratorID string            `json:"moderator_id,omitempty"`
	Detector    string            `json:"detector"`
	Action      string            `json:"action,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Outcome     Outcome           `json:"outcome"`
	Error       string            `json:"error,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// Fills in ID and timestamp if they are not already set.
func (r *Record) Stamp(now time.Time) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = now
	}
}

// Short human-readable rendering, used by chat-style sinks.
func (r *Record) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", r.Detector, r.Outcome)
	if r.Action != "" {
		fmt.Fprintf(&b, " %s", r.Action)
	}
	if r.UserID != "" {
		fmt.Fprintf(&b, " user=%s", r.UserID)
	}
	if r.ChannelID != "" {
		fmt.Fprintf(&b, " channel=%s", r.ChannelID)
	}
	if r.ModeratorID != "" {
		fmt.Fprintf(&b, " moderator=%s", r.ModeratorID)
	}
	if r.Reason != "" {
		fmt.Fprintf(&b, "\nreason: %s", r.Reason)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", r.Error)
	}
	keys := make([]string, 0, len(r.Details))
	for k := range r.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, r.Details[k])
	}
	return b.String()
}

type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// Delivers every record to each sink; one failing sink does not stop the others.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
