// Package store is the gorm-backed persistence for profiles, redeem codes
// and redemptions. Uniqueness and use limits are each enforced by a single
// constraint-backed statement; nothing here holds locks across calls.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

var (
	// ErrProfileNotFound is returned when a benefit targets a principal without a profile row.
	ErrProfileNotFound = errors.New("store: profile not found")
	// ErrCodeNotFound is returned by staff operations on an unknown code id.
	ErrCodeNotFound = errors.New("store: code not found")
	// ErrDuplicateCode is returned when creating a code that already exists.
	ErrDuplicateCode = errors.New("store: code already exists")
	// ErrInvalidBenefit is returned for a benefit value that cannot be applied.
	ErrInvalidBenefit = errors.New("store: invalid benefit value")
)

// RedeemStore implements the redemption primitives over gorm.
type RedeemStore struct {
	DB *gorm.DB
}

// NewRedeemStore creates a store over db.
func NewRedeemStore(db *gorm.DB) *RedeemStore {
	return &RedeemStore{DB: db}
}

// FindActiveByCode returns the active code with exactly this (normalised)
// value, or nil when none exists.
func (s *RedeemStore) FindActiveByCode(ctx context.Context, code string) (*models.RedeemCode, error) {
	var row models.RedeemCode
	err := s.DB.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find code: %w", err)
	}
	return &row, nil
}

// InsertRedemptionIfAbsent records the redemption unless (code, principal)
// already exists. inserted is false when the unique index rejected the row.
func (s *RedeemStore) InsertRedemptionIfAbsent(ctx context.Context, codeID uint, principalID, sourceIP string, at time.Time) (id uint, inserted bool, err error) {
	row := models.CodeRedemption{
		CodeID:      codeID,
		PrincipalID: principalID,
		RedeemedAt:  at,
		SourceIP:    sourceIP,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code_id"}, {Name: "principal_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return 0, false, fmt.Errorf("insert redemption: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return row.ID, true, nil
}

// IncrementUses adds one use if and only if a use is still available.
// ok is false when the code was exhausted by the time the update ran.
func (s *RedeemStore) IncrementUses(ctx context.Context, codeID uint) (ok bool, err error) {
	res := s.DB.WithContext(ctx).
		Model(&models.RedeemCode{}).
		Where("id = ? AND current_uses < max_uses", codeID).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("increment uses: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteRedemption removes a redemption row. Only the redemption engine's
// compensation path calls this, for the row it just inserted.
func (s *RedeemStore) DeleteRedemption(ctx context.Context, id uint) error {
	if err := s.DB.WithContext(ctx).Delete(&models.CodeRedemption{}, id).Error; err != nil {
		return fmt.Errorf("delete redemption %d: %w", id, err)
	}
	return nil
}

// ApplyBenefit grants the benefit of a code to a principal.
func (s *RedeemStore) ApplyBenefit(ctx context.Context, principalID string, codeID uint, typ models.CodeType, value string) error {
	return applyBenefit(s.DB.WithContext(ctx), principalID, codeID, typ, value)
}

func applyBenefit(db *gorm.DB, principalID string, codeID uint, typ models.CodeType, value string) error {
	switch typ {
	case models.CodePremium:
		return updateProfile(db, principalID, map[string]any{"is_premium": true})
	case models.CodeStorage:
		mb, err := strconv.ParseInt(value, 10, 64)
		if err != nil || mb < 0 {
			return fmt.Errorf("%w: storage %q", ErrInvalidBenefit, value)
		}
		return updateProfile(db, principalID, map[string]any{
			"storage_bonus_mb": gorm.Expr("storage_bonus_mb + ?", mb),
		})
	case models.CodeCustom:
		grant := models.GrantedBenefit{PrincipalID: principalID, CodeID: codeID, Payload: value}
		if err := db.Create(&grant).Error; err != nil {
			return fmt.Errorf("grant custom benefit: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidBenefit, typ)
	}
}

func updateProfile(db *gorm.DB, principalID string, cols map[string]any) error {
	res := db.Model(&models.Profile{}).Where("principal_id = ?", principalID).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}
