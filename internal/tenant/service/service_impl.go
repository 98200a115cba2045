package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/payforms/internal/cache"
	"github.com/smallbiznis/payforms/internal/clock"
	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	obslogger "github.com/smallbiznis/payforms/internal/observability/logger"
	referencedomain "github.com/smallbiznis/payforms/internal/reference/domain"
	"github.com/smallbiznis/payforms/internal/tenant/domain"
	"github.com/smallbiznis/payforms/pkg/db"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 20

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Catalog  referencedomain.Catalog
	Features featuredomain.Service
	Payforms domain.PayformInitializer `optional:"true"`
	Cache    cache.TenantCache         `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	catalog  referencedomain.Catalog
	features featuredomain.Service
	payforms domain.PayformInitializer
	cache    cache.TenantCache
}

func New(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("tenant.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		catalog:  p.Catalog,
		features: p.Features,
		payforms: p.Payforms,
		cache:    p.Cache,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	currency := strings.ToUpper(strings.TrimSpace(req.BaseCurrency))
	ok, err := s.catalog.IsSupported(ctx, currency)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	tenant := &domain.Tenant{
		ID:           s.genID.Generate(),
		Name:         name,
		BaseCurrency: currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := slug.Make(name)
		if base == "" {
			base = "tenant"
		}
		for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
			candidate := base
			if attempt > 1 {
				candidate = fmt.Sprintf("%s-%d", base, attempt)
			}
			taken, err := s.repo.SlugExists(ctx, tx, candidate)
			if err != nil {
				return err
			}
			if !taken {
				tenant.Slug = candidate
				break
			}
		}
		if tenant.Slug == "" {
			tenant.Slug = base + "-" + tenant.ID.String()
		}
		return s.repo.Insert(ctx, tx, tenant)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("tenant slug %q taken: %w", tenant.Slug, err)
		}
		return nil, err
	}

	log := obslogger.WithContext(ctx, s.log).With(zap.String("tenant_id", tenant.ID.String()))
	log.Info("tenant.created", zap.String("slug", tenant.Slug), zap.String("base_currency", currency))

	if s.payforms != nil {
		scope, err := s.Resolve(ctx, tenant.ID)
		if err != nil {
			return nil, err
		}
		if err := s.payforms.EnsureTenantPayforms(ctx, scope); err != nil {
			log.Error("tenant.payforms.seed_failed", zap.Error(err))
			return nil, err
		}
	}
	return tenant, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	if id == 0 {
		return nil, domain.ErrInvalidTenant
	}
	tenant, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrNotFound
	}
	return tenant, nil
}

func (s *service) Resolve(ctx context.Context, id snowflake.ID) (tenantctx.Tenant, error) {
	record, err := s.lookup(ctx, id)
	if err != nil {
		return tenantctx.Tenant{}, err
	}
	gate, err := s.features.Gate(ctx, record.ID)
	if err != nil {
		return tenantctx.Tenant{}, err
	}
	return tenantctx.Tenant{
		ID:           record.ID,
		BaseCurrency: record.BaseCurrency,
		Features:     gate,
	}, nil
}

func (s *service) lookup(ctx context.Context, id snowflake.ID) (cache.TenantRecord, error) {
	if s.cache != nil {
		if record, ok := s.cache.GetTenant(id); ok {
			return record, nil
		}
	}
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return cache.TenantRecord{}, err
	}
	record := cache.TenantRecord{
		ID:           tenant.ID,
		Name:         tenant.Name,
		BaseCurrency: tenant.BaseCurrency,
	}
	if s.cache != nil {
		s.cache.SetTenant(record)
	}
	return record, nil
}
