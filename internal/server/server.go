package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payforms/internal/config"
	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	"github.com/smallbiznis/payforms/internal/observability"
	obsmiddleware "github.com/smallbiznis/payforms/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payforms/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payforms/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/payforms/internal/order/domain"
	payformservice "github.com/smallbiznis/payforms/internal/payform/service"
	"github.com/smallbiznis/payforms/internal/ratelimit"
	referencedomain "github.com/smallbiznis/payforms/internal/reference/domain"
	tenantdomain "github.com/smallbiznis/payforms/internal/tenant/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerBindingTags()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		TenantHeader:    HeaderTenant,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	payformSvc    *payformservice.Service
	transactions  txdomain.Service
	orderSvc      orderdomain.Service
	tenantSvc     tenantdomain.Service
	featureSvc    featuredomain.Service
	catalog       referencedomain.Catalog
	commitLimiter *ratelimit.CommitLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	PayformSvc    *payformservice.Service
	Transactions  txdomain.Service
	OrderSvc      orderdomain.Service
	TenantSvc     tenantdomain.Service
	FeatureSvc    featuredomain.Service
	Catalog       referencedomain.Catalog
	CommitLimiter *ratelimit.CommitLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		payformSvc:    p.PayformSvc,
		transactions:  p.Transactions,
		orderSvc:      p.OrderSvc,
		tenantSvc:     p.TenantSvc,
		featureSvc:    p.FeatureSvc,
		catalog:       p.Catalog,
		commitLimiter: p.CommitLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAdminRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/tenants", s.CreateTenant)
	admin.GET("/tenants/:id", s.GetTenant)
	admin.PUT("/tenants/:id/features/:code", s.GrantFeature)
	admin.DELETE("/tenants/:id/features/:code", s.RevokeFeature)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/currencies", s.ListCurrencies)

	scoped := api.Group("", s.TenantContext())

	// -------- Payforms --------
	scoped.GET("/payforms/actives", s.ListActivePayforms)
	scoped.GET("/payforms", s.RequireFeature(featuredomain.FeatureListPayforms), s.ListPayforms)
	scoped.GET("/payforms/:id", s.RequireFeature(featuredomain.FeatureUpdatePayforms), s.GetPayform)
	scoped.PUT("/payforms/:id", s.RequireFeature(featuredomain.FeatureUpdatePayforms), s.UpdatePayform)
	scoped.POST("/payforms/:id/commit", s.CommitRateLimit(), s.CommitPayform)
	scoped.POST("/payforms/:id/transactions", s.CreatePayformTransaction)

	// -------- Payment transactions --------
	scoped.GET("/payment-transactions", s.ListTransactions)
	scoped.GET("/payment-transactions/:id", s.GetTransaction)
	scoped.PUT("/payment-transactions/:id/manual-status-change", s.RequireFeature(featuredomain.FeatureManualStatusChange), s.ManualStatusChange)

	// -------- Payables --------
	scoped.POST("/payables/:type/:id/status", s.SyncPayableStatus)

	// -------- Orders --------
	scoped.POST("/orders", s.CreateOrder)
	scoped.GET("/orders/:id", s.GetOrder)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
