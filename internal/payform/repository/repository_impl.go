package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const definitionColumns = `id, tenant_id, payform_id, name, description, icon, active, currencies,
	expiration_hours, args, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, payformID string) (*domain.Definition, error) {
	var items []domain.Definition
	err := db.WithContext(ctx).Raw(
		`SELECT `+definitionColumns+`
		 FROM payforms_data
		 WHERE tenant_id = ? AND payform_id = ?
		 LIMIT 1`,
		tenantID,
		payformID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	def := items[0]
	if def.Args == nil {
		def.Args = datatypes.JSONMap{}
	}
	if def.Currencies == nil {
		def.Currencies = datatypes.JSONSlice[string]{}
	}
	return &def, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, def *domain.Definition) error {
	if def == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payforms_data (`+definitionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID,
		def.TenantID,
		def.PayformID,
		def.Name,
		def.Description,
		def.Icon,
		def.Active,
		currencies(def.Currencies),
		def.ExpirationHours,
		args(def.Args),
		def.CreatedAt,
		def.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, payformID string, update domain.UpdateDefinition) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payforms_data
		 SET name = ?, description = ?, icon = ?, active = ?, currencies = ?,
		     expiration_hours = ?, args = ?, updated_at = ?
		 WHERE tenant_id = ? AND payform_id = ?`,
		update.Name,
		update.Description,
		update.Icon,
		update.Active,
		currencies(update.Currencies),
		update.ExpirationHours,
		args(update.Args),
		update.UpdatedAt,
		tenantID,
		payformID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MergeArgs applies changes to the stored argument map and returns the result; a nil value removes the key.
// Keys not named in changes keep their stored value.
func (r *repo) MergeArgs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, payformID string, changes map[string]any, now time.Time) (map[string]any, error) {
	var merged datatypes.JSONMap
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := `SELECT args FROM payforms_data WHERE tenant_id = ? AND payform_id = ?`
		if tx.Dialector != nil && tx.Dialector.Name() != "sqlite" {
			query += ` FOR UPDATE`
		}
		var rows []struct {
			Args datatypes.JSONMap
		}
		if err := tx.Raw(query, tenantID, payformID).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return domain.ErrNotFound
		}

		merged = args(rows[0].Args)
		for k, v := range changes {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		return tx.Exec(
			`UPDATE payforms_data SET args = ?, updated_at = ? WHERE tenant_id = ? AND payform_id = ?`,
			merged,
			now,
			tenantID,
			payformID,
		).Error
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func currencies(values []string) datatypes.JSONSlice[string] {
	if values == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](values)
}

func args(values map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range values {
		out[k] = v
	}
	return out
}
