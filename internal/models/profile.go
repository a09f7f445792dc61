package models

import (
	"time"
)

// Role values stored in profiles.role.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Profile is the public bio-link profile owned by one authenticated principal.
// The role column is the first source consulted when deciding staff privilege.
type Profile struct {
	PrincipalID    string    `gorm:"primaryKey;size:64" json:"principal_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Username       string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	DisplayName    string    `gorm:"size:100" json:"display_name,omitempty"`
	Role           string    `gorm:"size:20;not null;default:user" json:"role"`
	IsPremium      bool      `gorm:"not null" json:"is_premium"`
	StorageBonusMB int64     `gorm:"column:storage_bonus_mb;not null;default:0" json:"storage_bonus_mb"`
}

// IsStaff reports whether the stored role grants staff access on its own.
func (p *Profile) IsStaff() bool {
	return p.Role == RoleAdmin || p.Role == RoleModerator
}
