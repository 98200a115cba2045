package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/feature/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListEnabledCodes(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]string, error) {
	var codes []string
	err := db.WithContext(ctx).Raw(
		`SELECT code FROM tenant_features WHERE tenant_id = ? AND enabled = ? ORDER BY code`,
		tenantID,
		true,
	).Scan(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, feature *domain.TenantFeature) error {
	if feature == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenant_features (id, tenant_id, code, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, code)
		 DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		feature.ID,
		feature.TenantID,
		feature.Code,
		feature.Enabled,
		feature.CreatedAt,
		feature.UpdatedAt,
	).Error
}
