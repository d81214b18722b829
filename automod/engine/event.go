package engine

import (
	"path"
	"strings"
	"time"
)

type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Image attachments are identified by content type, falling back to file extension.
func (a Attachment) IsImage() bool {
	if a.ContentType != "" {
		return strings.HasPrefix(a.ContentType, "image/")
	}
	switch strings.ToLower(path.Ext(a.Filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// Immutable
type MessageEvent struct {
	CommunityID string
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorIsBot bool
	// author holds the platform's manage-messages (or equivalent) permission
	AuthorCanManage bool
	Content         string
	// user IDs mentioned, possibly with repeats
	Mentions        []string
	RoleMentions    []string
	MentionEveryone bool
	Attachments     []Attachment
	CreatedAt       time.Time
}

// Immutable
type JoinEvent struct {
	CommunityID string
	UserID      string
	IsBot       bool
	JoinedAt    time.Time
}

// Immutable
type BanEvent struct {
	CommunityID string
	UserID      string
	// roles the member held when banned
	RoleIDs []string
	Reason  string
}

// Envelope for routing any inbound event through a single queue. Exactly one field is set.
type Event struct {
	Message *MessageEvent
	Join    *JoinEvent
	Ban     *BanEvent
}

func (e Event) CommunityID() string {
	switch {
	case e.Message != nil:
		return e.Message.CommunityID
	case e.Join != nil:
		return e.Join.CommunityID
	case e.Ban != nil:
		return e.Ban.CommunityID
	}
	return ""
}
