package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

// ProfileStore reads profile rows.
type ProfileStore struct {
	DB *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{DB: db}
}

// FindByPrincipal returns the profile owned by principalID or ErrProfileNotFound.
func (s *ProfileStore) FindByPrincipal(ctx context.Context, principalID string) (*models.Profile, error) {
	var p models.Profile
	err := s.DB.WithContext(ctx).Where("principal_id = ?", principalID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}
