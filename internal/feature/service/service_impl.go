package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/cache"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/feature/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
	Cache cache.TenantCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
	cache cache.TenantCache
}

func New(p Params) domain.Service {
	c := p.Cache
	if c == nil {
		c = cache.NewTenantCache()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("feature.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: clk,
		cache: c,
	}
}

// Gate returns the tenant's granted feature set, served from cache when fresh.
func (s *Service) Gate(ctx context.Context, tenantID snowflake.ID) (tenantctx.FeatureGate, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if features, ok := s.cache.GetFeatures(tenantID); ok {
		return tenantctx.StaticGate(features), nil
	}

	codes, err := s.repo.ListEnabledCodes(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	features := make(map[string]bool, len(codes)+len(domain.BasicFeatures))
	for _, code := range domain.BasicFeatures {
		features[code] = true
	}
	for _, code := range codes {
		features[code] = true
	}
	s.cache.SetFeatures(tenantID, features)
	return tenantctx.StaticGate(features), nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]string, error) {
	gate, err := s.Gate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	static, _ := gate.(tenantctx.StaticGate)
	codes := make([]string, 0, len(static))
	for code, enabled := range static {
		if enabled {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (s *Service) Grant(ctx context.Context, tenantID snowflake.ID, code string) error {
	return s.set(ctx, tenantID, code, true)
}

func (s *Service) Revoke(ctx context.Context, tenantID snowflake.ID, code string) error {
	code = strings.TrimSpace(code)
	for _, basic := range domain.BasicFeatures {
		if basic == code {
			return domain.ErrBasicFeature
		}
	}
	return s.set(ctx, tenantID, code, false)
}

func (s *Service) set(ctx context.Context, tenantID snowflake.ID, code string, enabled bool) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	code = strings.TrimSpace(code)
	if !domain.IsKnown(code) {
		return domain.ErrInvalidCode
	}

	now := s.clock.Now()
	err := s.repo.Upsert(ctx, s.db, &domain.TenantFeature{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Code:      code,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateFeatures(tenantID)

	s.log.Info("tenant feature updated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("code", code),
		zap.Bool("enabled", enabled),
	)
	return nil
}
