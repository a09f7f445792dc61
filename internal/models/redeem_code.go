package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// CodeType selects which benefit a redeem code grants.
type CodeType string

const (
	CodePremium CodeType = "premium"
	CodeStorage CodeType = "storage"
	CodeCustom  CodeType = "custom"
)

// CodeTypes lists the accepted code types.
var CodeTypes = []string{string(CodePremium), string(CodeStorage), string(CodeCustom)}

// MaxCodeLength bounds the code string accepted from clients and staff.
const MaxCodeLength = 50

// RedeemCode is a promotional code with a bounded number of uses.
// current_uses never exceeds max_uses; the check constraint backs the
// conditional increment done by the store.
type RedeemCode struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Code        string     `gorm:"uniqueIndex;size:50;not null" json:"code"`
	Type        CodeType   `gorm:"size:20;not null" json:"type"`
	Value       string     `gorm:"size:500" json:"value"`
	MaxUses     int        `gorm:"not null;check:chk_redeem_codes_max_uses,max_uses >= 1" json:"max_uses"`
	CurrentUses int        `gorm:"not null;default:0;check:chk_redeem_codes_uses,current_uses >= 0 AND current_uses <= max_uses" json:"current_uses"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `gorm:"not null;index" json:"is_active"`
	CreatedBy   string     `gorm:"size:64" json:"created_by,omitempty"`
}

// NormalizeCode trims and upper-cases a code as entered by a client.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// BeforeCreate stores codes in canonical form.
func (c *RedeemCode) BeforeCreate(tx *gorm.DB) error {
	c.Code = NormalizeCode(c.Code)
	return nil
}

// IsExpired reports whether the code expired at or before now.
func (c *RedeemCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Exhausted reports whether every use has been consumed.
func (c *RedeemCode) Exhausted() bool {
	return c.CurrentUses >= c.MaxUses
}

// RemainingUses returns how many redemptions are still possible.
func (c *RedeemCode) RemainingUses() int {
	if c.Exhausted() {
		return 0
	}
	return c.MaxUses - c.CurrentUses
}

// CodeRedemption records that a principal consumed a code. One row per
// (code, principal) pair.
type CodeRedemption struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CodeID      uint      `gorm:"not null;uniqueIndex:idx_redemption_code_principal" json:"code_id"`
	PrincipalID string    `gorm:"size:64;not null;uniqueIndex:idx_redemption_code_principal;index" json:"principal_id"`
	RedeemedAt  time.Time `gorm:"not null" json:"redeemed_at"`
	SourceIP    string    `gorm:"size:64" json:"source_ip,omitempty"`
}

func (CodeRedemption) TableName() string { return "code_redemptions" }
