package strikes

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&StrikeRecord{}); err != nil {
		return nil, fmt.Errorf("migrating strikes table: %w", err)
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, rec *StrikeRecord) error {
	return s.DB.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) ListActive(ctx context.Context, userID, communityID string) ([]StrikeRecord, error) {
	var out []StrikeRecord
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND community_id = ? AND active = ?", userID, communityID, true).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *GormStore) Deactivate(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&StrikeRecord{}).Where("id IN ?", ids).Update("active", false).Error
}

func (s *GormStore) DeactivateAll(ctx context.Context, userID, communityID string) (int, error) {
	res := s.DB.WithContext(ctx).Model(&StrikeRecord{}).
		Where("user_id = ? AND community_id = ? AND active = ?", userID, communityID, true).
		Update("active", false)
	return int(res.RowsAffected), res.Error
}

func (s *GormStore) List(ctx context.Context, userID, communityID string) ([]StrikeRecord, error) {
	var out []StrikeRecord
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND community_id = ?", userID, communityID).
		Order("id desc").
		Find(&out).Error
	return out, err
}
