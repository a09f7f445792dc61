package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/5vraa/swims.cc-website-sub000/internal/events"
	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

// AuditStore persists audit events to the audit_logs table.
type AuditStore struct {
	DB *gorm.DB
}

func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{DB: db}
}

// Emit implements events.Sink.
func (s *AuditStore) Emit(ctx context.Context, e events.AuditEvent) error {
	row := models.AuditLog{
		CreatedAt:   e.OccurredAt,
		EventID:     e.ID,
		PrincipalID: e.PrincipalID,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Details:     e.DetailsJSON(),
		SourceIP:    e.SourceIP,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// ListAudit returns the newest audit rows for an entity.
func (s *AuditStore) ListAudit(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := s.DB.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id DESC").Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return rows, nil
}
