package models

import "time"

// AuditLog is an append-only record of privileged or state-changing actions.
type AuditLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	EventID     string    `gorm:"size:36;uniqueIndex" json:"event_id"`
	PrincipalID string    `gorm:"size:64;index" json:"principal_id"`
	EntityType  string    `gorm:"size:50;not null" json:"entity_type"`
	EntityID    string    `gorm:"size:64" json:"entity_id"`
	Action      string    `gorm:"size:50;not null" json:"action"`
	Details     string    `gorm:"type:text" json:"details,omitempty"`
	SourceIP    string    `gorm:"size:64" json:"source_ip,omitempty"`
}
