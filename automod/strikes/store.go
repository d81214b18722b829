// Durable per-(user, community) strike records with expiry and the progressive escalation policy.
package strikes

import (
	"context"
	"time"
)

// One infraction. Records are never deleted; expiry and manual clears flip Active.
type StrikeRecord struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_strike_user_community"`
	CommunityID string `gorm:"index:idx_strike_user_community"`
	// live strike count after this record was added
	StrikeCount int
	Reason      string
	ModeratorID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Active      bool
}

type Store interface {
	Insert(ctx context.Context, rec *StrikeRecord) error
	// all records flagged active for the pair, oldest first
	ListActive(ctx context.Context, userID, communityID string) ([]StrikeRecord, error)
	Deactivate(ctx context.Context, ids []uint) error
	DeactivateAll(ctx context.Context, userID, communityID string) (int, error)
	// every record for the pair, newest first
	List(ctx context.Context, userID, communityID string) ([]StrikeRecord, error)
}
