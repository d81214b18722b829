// Snapshots a member's roles when they are banned and re-applies them when they rejoin.
package rolebackup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hearth-social/warden/automod/enforce"
	"gorm.io/gorm"
)

var ErrNoBackup = errors.New("no role backup")

type Record struct {
	ID          uint     `gorm:"primaryKey"`
	UserID      string   `gorm:"index:idx_rolebackup_user_community"`
	CommunityID string   `gorm:"index:idx_rolebackup_user_community"`
	RoleIDs     []string `gorm:"serializer:json"`
	Reason      string
	BackedUpAt  time.Time
}

func (Record) TableName() string {
	return "role_backups"
}

type Store interface {
	Insert(ctx context.Context, rec *Record) error
	// most recent backup for the pair, or ErrNoBackup
	Latest(ctx context.Context, userID, communityID string) (*Record, error)
}

type MemStore struct {
	lk      sync.Mutex
	nextID  uint
	records []Record
}

func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

func (s *MemStore) Insert(ctx context.Context, rec *Record) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	rec.ID = s.nextID
	s.nextID++
	cp := *rec
	cp.RoleIDs = slices.Clone(rec.RoleIDs)
	s.records = append(s.records, cp)
	return nil
}

func (s *MemStore) Latest(ctx context.Context, userID, communityID string) (*Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.UserID == userID && r.CommunityID == communityID {
			r.RoleIDs = slices.Clone(r.RoleIDs)
			return &r, nil
		}
	}
	return nil, ErrNoBackup
}

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating role backup table: %w", err)
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, rec *Record) error {
	return s.DB.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) Latest(ctx context.Context, userID, communityID string) (*Record, error) {
	var rec Record
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND community_id = ?", userID, communityID).
		Order("id desc").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type Service struct {
	Store    Store
	Platform enforce.Platform
	Logger   *slog.Logger
	Clock    func() time.Time
}

func NewService(store Store, p enforce.Platform, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:    store,
		Platform: p,
		Logger:   logger.With("component", "rolebackup"),
		Clock:    time.Now,
	}
}

// Stores the member's roles at ban time, minus the community's default role. Members with no other roles get no record.
func (s *Service) Backup(ctx context.Context, communityID, userID string, roleIDs []string, reason string) error {
	roles, err := s.Platform.Roles(ctx, communityID)
	if err != nil {
		return fmt.Errorf("listing roles: %w", err)
	}
	keep := []string{}
	for _, id := range roleIDs {
		if isDefaultRole(roles, communityID, id) || slices.Contains(keep, id) {
			continue
		}
		keep = append(keep, id)
	}
	if len(keep) == 0 {
		return nil
	}
	rec := &Record{
		UserID:      userID,
		CommunityID: communityID,
		RoleIDs:     keep,
		Reason:      reason,
		BackedUpAt:  s.Clock(),
	}
	if err := s.Store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("saving role backup: %w", err)
	}
	s.Logger.Info("roles backed up", "community", communityID, "user", userID, "roles", len(keep))
	return nil
}

// Re-applies the most recent backup for this member in this community. Roles which no longer exist, are managed by an integration, or sit at or above the bot's highest role are skipped. Returns the role IDs applied.
func (s *Service) Restore(ctx context.Context, communityID, userID string) ([]string, error) {
	rec, err := s.Store.Latest(ctx, userID, communityID)
	if errors.Is(err, ErrNoBackup) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	roles, err := s.Platform.Roles(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	top, err := s.Platform.TopRolePosition(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("fetching bot role position: %w", err)
	}
	byID := make(map[string]enforce.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	applied := []string{}
	for _, id := range rec.RoleIDs {
		r, ok := byID[id]
		if !ok || r.Default || r.Managed || r.Position >= top {
			continue
		}
		if err := s.Platform.AddRole(ctx, communityID, userID, id); err != nil {
			s.Logger.Warn("failed to restore role", "community", communityID, "user", userID, "role", id, "err", err)
			continue
		}
		applied = append(applied, id)
	}
	s.Logger.Info("roles restored", "community", communityID, "user", userID, "applied", len(applied), "backed_up", len(rec.RoleIDs))
	return applied, nil
}

func isDefaultRole(roles []enforce.Role, communityID, id string) bool {
	// on most platforms the default role shares the community's ID
	if id == communityID {
		return true
	}
	for _, r := range roles {
		if r.ID == id {
			return r.Default
		}
	}
	return false
}
