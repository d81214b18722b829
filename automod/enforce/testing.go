package enforce

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Call recorded by MockPlatform.
type Call struct {
	Op        string
	Community string
	User      string
	Channel   string
	Target    string
	Text      string
	Until     time.Time
	Delay     time.Duration
	Days      int
}

// In-memory Platform for tests. Member roles are tracked so role assignment and restore can be asserted on.
type MockPlatform struct {
	lk sync.Mutex

	Calls    []Call
	Messages []Message
	// roles present in each community
	CommunityRoles map[string][]Role
	// roles held by each "community/user"
	MemberRoles map[string][]string
	BotTopRole  int
	// errors returned by operation name (eg, "Ban")
	Fail map[string]error
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		CommunityRoles: make(map[string][]Role),
		MemberRoles:    make(map[string][]string),
		BotTopRole:     100,
		Fail:           make(map[string]error),
	}
}

func (m *MockPlatform) record(c Call) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.Calls = append(m.Calls, c)
	return m.Fail[c.Op]
}

// Recorded calls for one operation name.
func (m *MockPlatform) CallsFor(op string) []Call {
	m.lk.Lock()
	defer m.lk.Unlock()
	out := []Call{}
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockPlatform) SetFail(op string, err error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.Fail[op] = err
}

func (m *MockPlatform) HasRole(communityID, userID, roleID string) bool {
	m.lk.Lock()
	defer m.lk.Unlock()
	return slices.Contains(m.MemberRoles[communityID+"/"+userID], roleID)
}

func (m *MockPlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := m.record(Call{Op: "DeleteMessage", Channel: channelID, Target: messageID}); err != nil {
		return err
	}
	m.lk.Lock()
	defer m.lk.Unlock()
	m.Messages = slices.DeleteFunc(m.Messages, func(msg Message) bool {
		return msg.ID == messageID
	})
	return nil
}

func (m *MockPlatform) RecentMessages(ctx context.Context, channelID string, since time.Time) ([]Message, error) {
	if err := m.record(Call{Op: "RecentMessages", Channel: channelID}); err != nil {
		return nil, err
	}
	m.lk.Lock()
	defer m.lk.Unlock()
	out := []Message{}
	for i := len(m.Messages) - 1; i >= 0; i-- {
		msg := m.Messages[i]
		if msg.ChannelID == channelID && !msg.CreatedAt.Before(since) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MockPlatform) SendDirect(ctx context.Context, userID, text string) error {
	return m.record(Call{Op: "SendDirect", User: userID, Text: text})
}

func (m *MockPlatform) SendMessage(ctx context.Context, channelID, text string) error {
	return m.record(Call{Op: "SendMessage", Channel: channelID, Text: text})
}

func (m *MockPlatform) Timeout(ctx context.Context, communityID, userID string, until time.Time, reason string) error {
	return m.record(Call{Op: "Timeout", Community: communityID, User: userID, Until: until, Text: reason})
}

func (m *MockPlatform) Kick(ctx context.Context, communityID, userID, reason string) error {
	return m.record(Call{Op: "Kick", Community: communityID, User: userID, Text: reason})
}

func (m *MockPlatform) Ban(ctx context.Context, communityID, userID, reason string, deleteHistoryDays int) error {
	return m.record(Call{Op: "Ban", Community: communityID, User: userID, Text: reason, Days: deleteHistoryDays})
}

func (m *MockPlatform) AddRole(ctx context.Context, communityID, userID, roleID string) error {
	if err := m.record(Call{Op: "AddRole", Community: communityID, User: userID, Target: roleID}); err != nil {
		return err
	}
	m.lk.Lock()
	defer m.lk.Unlock()
	k := communityID + "/" + userID
	if !slices.Contains(m.MemberRoles[k], roleID) {
		m.MemberRoles[k] = append(m.MemberRoles[k], roleID)
	}
	return nil
}

func (m *MockPlatform) RemoveRole(ctx context.Context, communityID, userID, roleID string) error {
	if err := m.record(Call{Op: "RemoveRole", Community: communityID, User: userID, Target: roleID}); err != nil {
		return err
	}
	m.lk.Lock()
	defer m.lk.Unlock()
	k := communityID + "/" + userID
	if !slices.Contains(m.MemberRoles[k], roleID) {
		return fmt.Errorf("member role %s: %w", roleID, ErrNotFound)
	}
	m.MemberRoles[k] = slices.DeleteFunc(m.MemberRoles[k], func(r string) bool { return r == roleID })
	return nil
}

func (m *MockPlatform) SetSlowmode(ctx context.Context, channelID string, delay time.Duration) error {
	return m.record(Call{Op: "SetSlowmode", Channel: channelID, Delay: delay})
}

func (m *MockPlatform) Roles(ctx context.Context, communityID string) ([]Role, error) {
	if err := m.record(Call{Op: "Roles", Community: communityID}); err != nil {
		return nil, err
	}
	m.lk.Lock()
	defer m.lk.Unlock()
	return slices.Clone(m.CommunityRoles[communityID]), nil
}

func (m *MockPlatform) TopRolePosition(ctx context.Context, communityID string) (int, error) {
	if err := m.record(Call{Op: "TopRolePosition", Community: communityID}); err != nil {
		return 0, err
	}
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.BotTopRole, nil
}
