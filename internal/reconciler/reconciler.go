package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	obsmetrics "github.com/smallbiznis/payforms/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/ratelimit"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobExpiry = "payment_expiry"

// Skip reasons reported in logs and metrics.
const (
	SkipNoPayable    = "no_payable"
	SkipNotFound     = "payable_not_found"
	SkipUnsupported  = "payable_unsupported"
	SkipTerminal     = "payable_terminal"
	SkipNotification = "notification_failed"
	SkipTenant       = "tenant_unavailable"
)

var ErrInvalidConfig = errors.New("invalid_reconciler_config")

// TenantResolver builds the explicit tenant scope for a tenant id.
type TenantResolver interface {
	Resolve(ctx context.Context, id snowflake.ID) (tenantctx.Tenant, error)
}

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Transactions txdomain.Service
	Payables     payabledomain.Lookup
	Tenants      TenantResolver
	Settings     *config.PayformsSettingsHolder
	Clock        clock.Clock
	Locker       *ratelimit.Locker            `optional:"true"`
	Metrics      *obsmetrics.ReconcilerMetrics `optional:"true"`
	Config       Config                        `optional:"true"`
}

type Reconciler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	transactions txdomain.Service
	payables     payabledomain.Lookup
	tenants      TenantResolver
	settings     *config.PayformsSettingsHolder
	clock        clock.Clock
	locker       *ratelimit.Locker
	metrics      *obsmetrics.ReconcilerMetrics
}

// Result aggregates one sweep.
type Result struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

func (r *Result) add(other Result) {
	r.Processed += other.Processed
	r.Skipped += other.Skipped
}

func New(p Params) (*Reconciler, error) {
	if p.Log == nil || p.GenID == nil || p.Transactions == nil || p.Payables == nil || p.Tenants == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Reconciler{
		log:          p.Log.Named("reconciler").With(zap.String("component", "reconciler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		transactions: p.Transactions,
		payables:     p.Payables,
		tenants:      p.Tenants,
		settings:     p.Settings,
		clock:        p.Clock,
		locker:       p.Locker,
		metrics:      p.Metrics,
	}, nil
}

// RunOnce sweeps every tenant holding expired pending transactions.
func (r *Reconciler) RunOnce(parent context.Context) (Result, error) {
	start := r.clock.Now()
	ctx, run, owner := r.ensureJobRun(parent, jobExpiry, r.cfg.BatchSize)
	if owner {
		r.logJobStart(ctx, run)
	}
	r.metrics.IncRun(jobExpiry)

	var total Result
	var runErr error

	tenantIDs, err := r.transactions.TenantsWithExpiredPending(ctx, start)
	if err != nil {
		runErr = fmt.Errorf("%s: %w", jobExpiry, err)
		r.metrics.IncError(jobExpiry, err)
		run.IncError()
	}

	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			runErr = errors.Join(runErr, ctx.Err())
			break
		}
		res, err := r.runTenant(ctx, run, tenantID, start)
		total.add(res)
		if err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	run.AddProcessed(total.Processed)
	run.AddSkipped(total.Skipped)
	r.metrics.AddProcessed(jobExpiry, total.Processed)
	r.metrics.ObserveDuration(jobExpiry, r.clock.Now().Sub(start))
	if owner {
		r.logJobFinish(ctx, run)
	}
	return total, runErr
}

// RunForever sweeps on every interval tick until ctx is canceled.
func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(r.cfg.RunInterval)

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("reconciler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.metrics.ObserveRunLoopLag(time.Since(nextRun))
		nextRun = nextRun.Add(r.cfg.RunInterval)
	}
}

func (r *Reconciler) runTenant(parent context.Context, run *jobRun, tenantID snowflake.ID, now time.Time) (Result, error) {
	ctx := r.withLogContext(parent, tenantID)
	log := r.logger(ctx)

	if r.locker != nil {
		key := "payforms:reconciler:" + tenantID.String()
		token, ok, err := r.locker.TryLock(ctx, key, r.cfg.LockTTL)
		if err != nil {
			r.logReconcilerError(ctx, run, "reconciler.lock.failed", tenantID, err)
			r.metrics.IncError(jobExpiry, err)
			return Result{}, nil
		}
		if !ok {
			log.Debug("reconciler.tenant.locked", zap.String("tenant_id", tenantID.String()))
			return Result{}, nil
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("reconciler.lock.release_failed", zap.Error(err))
			}
		}()
	}

	tenant, err := r.tenants.Resolve(ctx, tenantID)
	if err != nil {
		r.logReconcilerError(ctx, run, "reconciler.tenant.resolve_failed", tenantID, err)
		r.metrics.IncSkipped(jobExpiry, SkipTenant)
		return Result{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.TenantTimeout)
	defer cancel()

	var res Result
	var afterID snowflake.ID
	for {
		batch, err := r.transactions.ListExpiredPending(ctx, tenant.ID, now, afterID, r.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				r.metrics.IncTimeout(jobExpiry)
				log.Warn("reconciler.tenant.timeout",
					zap.Duration("timeout", r.cfg.TenantTimeout),
					zap.Int("processed", res.Processed),
				)
				return res, nil
			}
			r.logReconcilerError(ctx, run, "reconciler.tenant.list_failed", tenantID, err)
			r.metrics.IncError(jobExpiry, err)
			return res, fmt.Errorf("tenant %s: %w", tenantID, err)
		}
		if len(batch) == 0 {
			return res, nil
		}
		for _, tx := range batch {
			if r.expire(ctx, run, tenant, tx) {
				res.Processed++
			} else {
				res.Skipped++
			}
		}
		afterID = batch[len(batch)-1].ID
		if len(batch) < r.cfg.BatchSize {
			return res, nil
		}
	}
}

// expire notifies the payable behind tx and reports whether it was processed.
func (r *Reconciler) expire(ctx context.Context, run *jobRun, tenant tenantctx.Tenant, tx txdomain.Transaction) (processed bool) {
	fields := []zap.Field{
		zap.String("transaction_id", tx.ID.String()),
		zap.String("reference", tx.Reference),
		zap.String("payform_id", tx.PayformID),
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logReconcilerError(ctx, run, "reconciler.payable.panic", tenant.ID, fmt.Errorf("panic: %v", rec), fields...)
			r.metrics.IncSkipped(jobExpiry, SkipNotification)
			processed = false
		}
	}()

	ref, ok := tx.PayableRef()
	if !ok {
		r.skip(ctx, SkipNoPayable, fields...)
		return false
	}
	fields = append(fields, zap.String("payable", ref.String()))

	payable, err := r.payables.Resolve(ctx, tenant, ref)
	switch {
	case errors.Is(err, payabledomain.ErrUnsupported):
		r.skip(ctx, SkipUnsupported, fields...)
		return false
	case err != nil:
		if !errors.Is(err, payabledomain.ErrNotFound) {
			r.logReconcilerError(ctx, run, "reconciler.payable.resolve_failed", tenant.ID, err, fields...)
		}
		r.skip(ctx, SkipNotFound, fields...)
		return false
	case payable == nil:
		r.skip(ctx, SkipNotFound, fields...)
		return false
	}

	if r.settings.Get().IsTerminalPayableStatus(payable.Status()) {
		r.skip(ctx, SkipTerminal, append(fields, zap.String("payable_status", payable.Status()))...)
		return false
	}

	if err := payable.OnPaymentExpired(ctx); err != nil {
		r.logReconcilerError(ctx, run, "reconciler.payable.expire_failed", tenant.ID, err, fields...)
		r.metrics.IncSkipped(jobExpiry, SkipNotification)
		return false
	}
	r.logger(ctx).Info("reconciler.payable.expired", fields...)
	return true
}

func (r *Reconciler) skip(ctx context.Context, reason string, fields ...zap.Field) {
	r.metrics.IncSkipped(jobExpiry, reason)
	r.logger(ctx).Debug("reconciler.payable.skipped", append(fields, zap.String("reason", reason))...)
}
