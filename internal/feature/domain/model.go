package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Feature codes gating payform access and administration.
const (
	FeatureCashPayform          = "cash-payform"
	FeatureEnzonaPayform        = "enzona-payform"
	FeatureTransfermovilPayform = "transfermovil-payform"
	FeatureListPayforms         = "list-payforms"
	FeatureUpdatePayforms       = "update-payforms"
	FeatureManualStatusChange   = "manual-status-change"
)

// BasicFeatures are granted to every tenant regardless of stored grants.
var BasicFeatures = []string{FeatureCashPayform}

var knownFeatures = map[string]struct{}{
	FeatureCashPayform:          {},
	FeatureEnzonaPayform:        {},
	FeatureTransfermovilPayform: {},
	FeatureListPayforms:         {},
	FeatureUpdatePayforms:       {},
	FeatureManualStatusChange:   {},
}

func IsKnown(code string) bool {
	_, ok := knownFeatures[code]
	return ok
}

type TenantFeature struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index:ux_tenant_features_code,priority:1"`
	Code      string       `gorm:"type:text;not null;index:ux_tenant_features_code,priority:2"`
	Enabled   bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TenantFeature) TableName() string { return "tenant_features" }
