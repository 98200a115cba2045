package reconciler

import (
	"time"

	"github.com/smallbiznis/payforms/internal/config"
)

// Config controls the expiry sweep cadence and per-tenant bounds.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	// TenantTimeout bounds the work done for one tenant in a run.
	TenantTimeout time.Duration
	LockTTL       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		RunInterval:   time.Hour,
		BatchSize:     200,
		TenantTimeout: 5 * time.Minute,
		LockTTL:       30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:       cfg.Reconciler.Enabled,
		RunInterval:   cfg.Reconciler.Interval,
		BatchSize:     cfg.Reconciler.BatchSize,
		TenantTimeout: cfg.Reconciler.Timeout,
		LockTTL:       cfg.Reconciler.LockTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.TenantTimeout <= 0 {
		c.TenantTimeout = defaults.TenantTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
