package db

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

// SeedData is the layout of the YAML seed file.
type SeedData struct {
	Profiles []SeedProfile `yaml:"profiles"`
	Codes    []SeedCode    `yaml:"codes"`
}

type SeedProfile struct {
	PrincipalID string `yaml:"principal_id"`
	Username    string `yaml:"username"`
	Role        string `yaml:"role"`
}

type SeedCode struct {
	Code      string     `yaml:"code"`
	Type      string     `yaml:"type"`
	Value     string     `yaml:"value"`
	MaxUses   int        `yaml:"max_uses"`
	ExpiresAt *time.Time `yaml:"expires_at"`
	Inactive  bool       `yaml:"inactive"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &data, nil
}

// Seed inserts profiles and codes that do not exist yet. Existing rows are
// left untouched so the seed can run on every start.
func Seed(conn *gorm.DB, data *SeedData) error {
	if data == nil {
		return nil
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		for _, p := range data.Profiles {
			role := p.Role
			if role == "" {
				role = models.RoleUser
			}
			row := models.Profile{PrincipalID: p.PrincipalID, Username: p.Username, Role: role}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("seed profile %s: %w", p.Username, err)
			}
		}
		for _, c := range data.Codes {
			maxUses := c.MaxUses
			if maxUses < 1 {
				maxUses = 1
			}
			row := models.RedeemCode{
				Code:      c.Code,
				Type:      models.CodeType(c.Type),
				Value:     c.Value,
				MaxUses:   maxUses,
				ExpiresAt: c.ExpiresAt,
				IsActive:  !c.Inactive,
				CreatedBy: "seed",
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("seed code %s: %w", c.Code, err)
			}
		}
		return nil
	})
}
