package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListEnabledCodes(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]string, error)
	Upsert(ctx context.Context, db *gorm.DB, feature *TenantFeature) error
}
