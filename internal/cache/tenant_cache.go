package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	defaultFeatureTTL = 60 * time.Second
	defaultTenantTTL  = 5 * time.Minute
)

// TenantRecord is the cached slice of a tenant row needed to build a request scope.
type TenantRecord struct {
	ID           snowflake.ID
	Name         string
	BaseCurrency string
}

// TenantCache stores hot-path tenant lookups for payform requests.
type TenantCache interface {
	GetFeatures(tenantID snowflake.ID) (map[string]bool, bool)
	SetFeatures(tenantID snowflake.ID, features map[string]bool)
	InvalidateFeatures(tenantID snowflake.ID)
	GetTenant(tenantID snowflake.ID) (TenantRecord, bool)
	SetTenant(record TenantRecord)
}

type tenantCache struct {
	features   Cache[snowflake.ID, map[string]bool]
	tenants    Cache[snowflake.ID, TenantRecord]
	featureTTL time.Duration
	tenantTTL  time.Duration
}

// NewTenantCache returns an in-memory cache for tenant scopes.
func NewTenantCache() TenantCache {
	return &tenantCache{
		features:   NewTTLCache[snowflake.ID, map[string]bool](),
		tenants:    NewTTLCache[snowflake.ID, TenantRecord](),
		featureTTL: defaultFeatureTTL,
		tenantTTL:  defaultTenantTTL,
	}
}

func (c *tenantCache) GetFeatures(tenantID snowflake.ID) (map[string]bool, bool) {
	features, ok := c.features.Get(tenantID)
	if !ok {
		return nil, false
	}
	return copyFeatures(features), true
}

func (c *tenantCache) SetFeatures(tenantID snowflake.ID, features map[string]bool) {
	if tenantID == 0 {
		return
	}
	c.features.Set(tenantID, copyFeatures(features), c.featureTTL)
}

func (c *tenantCache) InvalidateFeatures(tenantID snowflake.ID) {
	c.features.Delete(tenantID)
}

func (c *tenantCache) GetTenant(tenantID snowflake.ID) (TenantRecord, bool) {
	return c.tenants.Get(tenantID)
}

func (c *tenantCache) SetTenant(record TenantRecord) {
	if record.ID == 0 || strings.TrimSpace(record.BaseCurrency) == "" {
		return
	}
	c.tenants.Set(record.ID, record, c.tenantTTL)
}

func copyFeatures(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for code, enabled := range src {
		dst[code] = enabled
	}
	return dst
}
