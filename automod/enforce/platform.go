// Enforcement executor: the single place where verdicts become platform actions.
package enforce

import (
	"context"
	"errors"
	"time"
)

var (
	// The platform refused the call because the bot lacks a permission or is below the target in the role hierarchy.
	ErrPermissionDenied = errors.New("permission denied")
	// The target (message, member, role) no longer exists.
	ErrNotFound = errors.New("not found")
)

type Action string

const (
	ActionNone    Action = "none"
	ActionWarn    Action = "warn"
	ActionTimeout Action = "timeout"
	ActionKick    Action = "kick"
	ActionBan     Action = "ban"
)

// Ordering used when two actions compete for the same member; the more severe one is applied.
func (a Action) Severity() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionTimeout:
		return 2
	case ActionKick:
		return 3
	case ActionBan:
		return 4
	}
	return 0
}

func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionNone, ActionWarn, ActionTimeout, ActionKick, ActionBan:
		return a, true
	}
	return "", false
}

type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	CreatedAt time.Time
}

type Role struct {
	ID       string
	Name     string
	Position int
	// the implicit role every member has (eg, @everyone)
	Default bool
	Managed bool
}

// Primitive operations a chat platform must provide. Implementations should wrap permission failures with ErrPermissionDenied and missing targets with ErrNotFound.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// messages in the channel created at or after since, newest first
	RecentMessages(ctx context.Context, channelID string, since time.Time) ([]Message, error)
	SendDirect(ctx context.Context, userID, text string) error
	SendMessage(ctx context.Context, channelID, text string) error
	Timeout(ctx context.Context, communityID, userID string, until time.Time, reason string) error
	Kick(ctx context.Context, communityID, userID, reason string) error
	Ban(ctx context.Context, communityID, userID, reason string, deleteHistoryDays int) error
	AddRole(ctx context.Context, communityID, userID, roleID string) error
	RemoveRole(ctx context.Context, communityID, userID, roleID string) error
	SetSlowmode(ctx context.Context, channelID string, delay time.Duration) error
	Roles(ctx context.Context, communityID string) ([]Role, error)
	// position of the highest role held by the bot itself
	TopRolePosition(ctx context.Context, communityID string) (int, error)
}
