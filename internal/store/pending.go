package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

const maxErrorText = 500

// EnqueuePending stores a benefit that could not be applied.
func (s *RedeemStore) EnqueuePending(ctx context.Context, p *models.PendingBenefit) error {
	p.LastError = truncate(p.LastError, maxErrorText)
	if err := s.DB.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("enqueue pending benefit: %w", err)
	}
	return nil
}

// ListPending returns up to limit live pending benefits, oldest first.
// Rows that were abandoned or already tried maxAttempts times are skipped.
func (s *RedeemStore) ListPending(ctx context.Context, limit, maxAttempts int) ([]models.PendingBenefit, error) {
	var rows []models.PendingBenefit
	err := s.DB.WithContext(ctx).
		Where("abandoned_at IS NULL AND attempts < ?", maxAttempts).
		Order("id").Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending benefits: %w", err)
	}
	return rows, nil
}

// ApplyPending claims item and applies its benefit in one transaction. The
// claim is the delete of the queue row: a worker that deletes nothing lost
// the race and returns false without touching the profile. A failed apply
// rolls the delete back so the row stays queued.
func (s *RedeemStore) ApplyPending(ctx context.Context, item models.PendingBenefit) (bool, error) {
	claimed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("abandoned_at IS NULL").Delete(&models.PendingBenefit{}, item.ID)
		if res.Error != nil {
			return fmt.Errorf("claim pending benefit %d: %w", item.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := applyBenefit(tx, item.PrincipalID, item.CodeID, item.Type, item.Value); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// MarkPendingFailed records another failed attempt. With abandon set the
// row is kept for inspection but no longer listed.
func (s *RedeemStore) MarkPendingFailed(ctx context.Context, id uint, cause error, abandon bool) error {
	msg := ""
	if cause != nil {
		msg = truncate(cause.Error(), maxErrorText)
	}
	cols := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": msg,
	}
	if abandon {
		cols["abandoned_at"] = time.Now().UTC()
	}
	err := s.DB.WithContext(ctx).
		Model(&models.PendingBenefit{}).
		Where("id = ?", id).
		Updates(cols).Error
	if err != nil {
		return fmt.Errorf("mark pending benefit %d: %w", id, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
