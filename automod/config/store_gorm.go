package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row holding one JSON-encoded ModerationConfig.
type ConfigDocument struct {
	CommunityID string `gorm:"primaryKey"`
	Document    string
	UpdatedAt   time.Time
}

func (ConfigDocument) TableName() string {
	return "moderation_configs"
}

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ConfigDocument{}); err != nil {
		return nil, fmt.Errorf("migrating config table: %w", err)
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) Load(ctx context.Context, communityID string) (*ModerationConfig, error) {
	var row ConfigDocument
	err := s.DB.WithContext(ctx).First(&row, "community_id = ?", communityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConfigMissing
	}
	if err != nil {
		return nil, err
	}
	return DecodeJSON(communityID, []byte(row.Document))
}

func (s *GormStore) Save(ctx context.Context, cfg *ModerationConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	row := ConfigDocument{
		CommunityID: cfg.CommunityID,
		Document:    string(b),
		UpdatedAt:   time.Now(),
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// Decodes a (possibly partial) JSON document over the defaults and validates the result. The document belongs to communityID regardless of any "community_id" it carries.
func DecodeJSON(communityID string, b []byte) (*ModerationConfig, error) {
	c := decodeBase(communityID)
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("decoding moderation config for %q: %w", communityID, err)
	}
	c.CommunityID = communityID
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
