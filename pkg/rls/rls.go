package rls

import (
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// WithTenant scopes Postgres row-level security policies to tenantID for the current transaction.
// Other dialects have no session settings and are left untouched.
func WithTenant(tx *gorm.DB, tenantID snowflake.ID) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_tenant_id', ?, true)",
		tenantID.String(),
	).Error
}
