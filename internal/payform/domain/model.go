package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Definition is the persisted configuration of one payform for one tenant.
type Definition struct {
	ID              snowflake.ID                `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID                `gorm:"column:tenant_id;not null" json:"-"`
	PayformID       string                      `gorm:"column:payform_id;type:text;not null" json:"payform_id"`
	Name            string                      `gorm:"type:text;not null" json:"name"`
	Description     string                      `gorm:"type:text;not null" json:"description"`
	Icon            string                      `gorm:"type:text;not null" json:"icon"`
	Active          bool                        `gorm:"not null" json:"active"`
	Currencies      datatypes.JSONSlice[string] `gorm:"type:jsonb;not null" json:"currencies"`
	ExpirationHours *int                        `gorm:"column:expiration_hours" json:"expiration_hours"`
	Args            datatypes.JSONMap           `gorm:"type:jsonb;not null" json:"args"`
	CreatedAt       time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Definition) TableName() string { return "payforms_data" }

// Summary is the public projection of an active payform.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Currencies  []string `json:"currencies"`
}

// DefinitionView is the administrative projection, including argument rules.
type DefinitionView struct {
	ID              snowflake.ID   `json:"id"`
	PayformID       string         `json:"payform_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Icon            string         `json:"icon"`
	Active          bool           `json:"active"`
	Configured      bool           `json:"configured"`
	Currencies      []string       `json:"currencies"`
	ExpirationHours *int           `json:"expiration_hours"`
	Args            map[string]any `json:"args"`
	Rules           []ArgRule      `json:"rules"`
}

// ArgRule describes one typed argument of a payform for admin tooling.
type ArgRule struct {
	Key   string `json:"key"`
	Rules string `json:"rules"`
}
