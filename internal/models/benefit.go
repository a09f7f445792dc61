package models

import "time"

// PendingBenefit is a benefit whose code was consumed but whose
// application failed. The reconciler retries it until it succeeds, the
// attempt cap is reached or the benefit turns out to be invalid.
type PendingBenefit struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CodeID      uint       `gorm:"not null;index" json:"code_id"`
	PrincipalID string     `gorm:"size:64;not null;index" json:"principal_id"`
	Type        CodeType   `gorm:"size:20;not null" json:"type"`
	Value       string     `gorm:"size:500" json:"value"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"size:500" json:"last_error,omitempty"`
	AbandonedAt *time.Time `gorm:"index" json:"abandoned_at,omitempty"`
}

// GrantedBenefit holds the opaque payload of a custom code.
type GrantedBenefit struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	PrincipalID string    `gorm:"size:64;not null;index" json:"principal_id"`
	CodeID      uint      `gorm:"index" json:"code_id"`
	Payload     string    `gorm:"type:text" json:"payload"`
}
