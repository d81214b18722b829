package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Stores one YAML document per community in a directory, named "<communityID>.yaml".
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(communityID string) string {
	return filepath.Join(s.Dir, filepath.Base(communityID)+".yaml")
}

func (s *FileStore) Load(ctx context.Context, communityID string) (*ModerationConfig, error) {
	b, err := os.ReadFile(s.path(communityID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfigMissing
	}
	if err != nil {
		return nil, err
	}
	c, err := DecodeYAML(communityID, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path(communityID), err)
	}
	return c, nil
}

// Writes to a temporary file and renames it over the old document.
func (s *FileStore) Save(ctx context.Context, cfg *ModerationConfig) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fpath := s.path(cfg.CommunityID)
	tmp := fpath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, fpath)
}

// YAML counterpart of DecodeJSON.
func DecodeYAML(communityID string, b []byte) (*ModerationConfig, error) {
	c := decodeBase(communityID)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("decoding moderation config for %q: %w", communityID, err)
	}
	c.CommunityID = communityID
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
