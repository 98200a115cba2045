package cache

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("forever", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Delete("forever")
	_, ok = c.Get("forever")
	assert.False(t, ok)
}

func TestTenantCacheCopiesFeatureSets(t *testing.T) {
	c := NewTenantCache()
	tenantID := snowflake.ID(42)
	features := map[string]bool{"cash-payform": true}

	c.SetFeatures(tenantID, features)
	features["enzona-payform"] = true

	cached, ok := c.GetFeatures(tenantID)
	assert.True(t, ok)
	assert.False(t, cached["enzona-payform"])

	cached["list-payforms"] = true
	again, _ := c.GetFeatures(tenantID)
	assert.False(t, again["list-payforms"])

	c.InvalidateFeatures(tenantID)
	_, ok = c.GetFeatures(tenantID)
	assert.False(t, ok)
}

func TestTenantCacheIgnoresIncompleteRecords(t *testing.T) {
	c := NewTenantCache()
	c.SetTenant(TenantRecord{ID: 7})
	_, ok := c.GetTenant(7)
	assert.False(t, ok)

	c.SetTenant(TenantRecord{ID: 7, BaseCurrency: "CUP"})
	record, ok := c.GetTenant(7)
	assert.True(t, ok)
	assert.Equal(t, "CUP", record.BaseCurrency)
}
