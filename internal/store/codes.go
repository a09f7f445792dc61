package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

// CreateCode inserts a new code. The code string is stored upper-case.
func (s *RedeemStore) CreateCode(ctx context.Context, code *models.RedeemCode) error {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(code)
	if res.Error != nil {
		return fmt.Errorf("create code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateCode
	}
	return nil
}

// SetActive enables or disables a code and returns the updated row.
func (s *RedeemStore) SetActive(ctx context.Context, id uint, active bool) (*models.RedeemCode, error) {
	db := s.DB.WithContext(ctx)
	res := db.Model(&models.RedeemCode{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, fmt.Errorf("set active: %w", res.Error)
	}
	var row models.RedeemCode
	if err := db.Take(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("reload code: %w", err)
	}
	return &row, nil
}

// ListCodes returns every code, newest first.
func (s *RedeemStore) ListCodes(ctx context.Context) ([]models.RedeemCode, error) {
	var rows []models.RedeemCode
	if err := s.DB.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return rows, nil
}
