package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	obslogger "github.com/smallbiznis/payforms/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payforms/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/db"
	"github.com/smallbiznis/payforms/pkg/db/pagination"
	"github.com/smallbiznis/payforms/pkg/rls"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Settings *config.PayformsSettingsHolder `optional:"true"`
	Payables payabledomain.Lookup           `optional:"true"`
	Metrics  *obsmetrics.Metrics            `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	settings *config.PayformsSettingsHolder
	payables payabledomain.Lookup
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("transaction.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    clk,
		settings: p.Settings,
		payables: p.Payables,
		metrics:  p.Metrics,
	}
}

// Create inserts the transaction and its initial status entry atomically.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Transaction, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	payformID := strings.TrimSpace(req.PayformID)
	if payformID == "" {
		return nil, domain.ErrInvalidPayform
	}
	if req.Amount < 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	var payableType, payableID *string
	if req.Payable != nil && !req.Payable.IsZero() {
		if err := req.Payable.Validate(); err != nil {
			return nil, err
		}
		typ := strings.ToLower(strings.TrimSpace(req.Payable.Type))
		id := strings.TrimSpace(req.Payable.ID)
		payableType, payableID = &typ, &id
	}

	now := s.clock.Now()
	initial := domain.StatusPending
	if req.Manual {
		initial = domain.StatusManual
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	var created *domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, req.TenantID); err != nil {
			return err
		}
		reference, err := s.resolveReference(ctx, tx, req.TenantID, req.Reference)
		if err != nil {
			return err
		}

		record := &domain.Transaction{
			ID:            s.genID.Generate(),
			TenantID:      req.TenantID,
			PayformID:     payformID,
			Reference:     reference,
			Amount:        req.Amount,
			Currency:      currency,
			Metadata:      metadata,
			PayableType:   payableType,
			PayableID:     payableID,
			ExpiresAt:     req.ExpiresAt,
			StatusVersion: 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateReference
			}
			return err
		}
		if err := s.repo.InsertStatus(ctx, tx, s.newEntry(record, initial, map[string]any{"source": domain.SourceCreate}, now)); err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStatusChange(ctx, string(initial), domain.SourceCreate)
	s.logger(ctx).Info("payform.transaction.created",
		zap.String("transaction_id", created.ID.String()),
		zap.String("tenant_id", created.TenantID.String()),
		zap.String("payform_id", created.PayformID),
		zap.String("reference", created.Reference),
		zap.String("status", string(initial)),
	)
	return created, nil
}

// resolveReference keeps a requested reference when free and disambiguates repeats with an attempt suffix.
func (s *Service) resolveReference(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return s.generateReference(), nil
	}
	candidate := requested
	for attempt := 2; attempt <= 50; attempt++ {
		existing, err := s.repo.FindByReference(ctx, tx, tenantID, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = requested + "-" + strconv.Itoa(attempt)
	}
	return requested + "-" + ulid.Make().String(), nil
}

func (s *Service) generateReference() string {
	return s.settings.Get().ReferencePrefix + ulid.Make().String()
}

func (s *Service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.Transaction, error) {
	record, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) FindByReference(ctx context.Context, tenantID snowflake.ID, reference string) (*domain.Transaction, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.ErrNotFound
	}
	record, err := s.repo.FindByReference(ctx, s.db, tenantID, reference)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) FindLatestForPayable(ctx context.Context, tenantID snowflake.ID, ref payabledomain.Ref) (*domain.Transaction, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	ref.Type = strings.ToLower(strings.TrimSpace(ref.Type))
	ref.ID = strings.TrimSpace(ref.ID)
	record, err := s.repo.FindLatestForPayable(ctx, s.db, tenantID, ref)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	limit := pagination.NormalizePageSize(req.PageSize)
	filter := domain.ListFilter{PayformID: req.PayformID, Limit: limit + 1}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		at, err := cursor.CursorTime()
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		filter.BeforeCreatedAt = &at
		filter.BeforeID = id
	}

	items, err := s.repo.List(ctx, s.db, req.TenantID, filter)
	if err != nil {
		return nil, err
	}
	page, info, err := pagination.BuildPage(items, limit, func(t domain.Transaction) pagination.Cursor {
		return pagination.NewCursor(t.ID.String(), t.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = []domain.Transaction{}
	}
	return &domain.ListResponse{Items: page, NextPageToken: info.NextPageToken, HasMore: info.HasMore}, nil
}

// SetStatus appends an entry unconditionally; existing entries are never touched.
func (s *Service) SetStatus(ctx context.Context, tenantID, id snowflake.ID, status domain.Status, metadata map[string]any) (*domain.StatusEntry, error) {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return nil, err
	}
	return s.appendStatus(ctx, tenantID, id, status, metadata, false)
}

// Pay appends APPROVED only if the current status is PENDING, guarded by the status version.
func (s *Service) Pay(ctx context.Context, tenantID, id snowflake.ID, metadata map[string]any) (*domain.StatusEntry, error) {
	return s.appendStatus(ctx, tenantID, id, domain.StatusApproved, metadata, true)
}

func (s *Service) appendStatus(ctx context.Context, tenantID, id snowflake.ID, status domain.Status, metadata map[string]any, requirePending bool) (*domain.StatusEntry, error) {
	now := s.clock.Now()
	var entry *domain.StatusEntry
	var previous domain.Status

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tenantID); err != nil {
			return err
		}
		record, err := s.repo.FindByID(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrNotFound
		}
		latest, err := s.repo.LatestStatus(ctx, tx, record.ID)
		if err != nil {
			return err
		}
		if latest != nil {
			previous = latest.Status
		}

		var expected *int64
		if requirePending {
			if previous != domain.StatusPending {
				return domain.ErrInvalidTransition
			}
			version := record.StatusVersion
			expected = &version
		}

		ok, err := s.repo.BumpStatusVersion(ctx, tx, tenantID, record.ID, expected, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}

		entry = s.newEntry(record, status, metadata, now)
		return s.repo.InsertStatus(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger(ctx).Warn("payment_transaction.transition.rejected",
				zap.String("transaction_id", id.String()),
				zap.String("current_status", string(previous)),
				zap.String("target_status", string(status)),
			)
		}
		return nil, err
	}

	source, _ := metadata["source"].(string)
	s.metrics.RecordStatusChange(ctx, string(status), source)
	s.logger(ctx).Info("payment_transaction.status.appended",
		zap.String("transaction_id", id.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
		zap.String("source", source),
	)
	return entry, nil
}

func (s *Service) CurrentStatus(ctx context.Context, tenantID, id snowflake.ID) (domain.Status, error) {
	record, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	latest, err := s.repo.LatestStatus(ctx, s.db, record.ID)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "", fmt.Errorf("transaction %s has no status history: %w", id, domain.ErrNotFound)
	}
	return latest.Status, nil
}

func (s *Service) History(ctx context.Context, tenantID, id snowflake.ID) ([]domain.StatusEntry, error) {
	record, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStatuses(ctx, s.db, record.ID)
}

// SetExternalID is write-once; repeating the stored value is a no-op.
func (s *Service) SetExternalID(ctx context.Context, tenantID, id snowflake.ID, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil
	}
	ok, err := s.repo.SetExternalIDOnce(ctx, s.db, tenantID, id, externalID, s.clock.Now())
	if err != nil || ok {
		return err
	}
	record, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if record.ExternalID != nil && *record.ExternalID == externalID {
		return nil
	}
	return domain.ErrAlreadySet
}

func (s *Service) SetExpiresAt(ctx context.Context, tenantID, id snowflake.ID, expiresAt time.Time) error {
	ok, err := s.repo.SetExpiresAtOnce(ctx, s.db, tenantID, id, expiresAt.UTC(), s.clock.Now())
	if err != nil || ok {
		return err
	}
	record, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if record.ExpiresAt != nil && record.ExpiresAt.Equal(expiresAt) {
		return nil
	}
	return domain.ErrAlreadySet
}

func (s *Service) ListExpiredPending(ctx context.Context, tenantID snowflake.ID, now time.Time, afterID snowflake.ID, limit int) ([]domain.Transaction, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListExpiredPending(ctx, s.db, tenantID, now, afterID, limit)
}

func (s *Service) TenantsWithExpiredPending(ctx context.Context, now time.Time) ([]snowflake.ID, error) {
	return s.repo.TenantsWithExpired(ctx, s.db, now)
}

// ManualStatusChange records an operator decision and notifies the payable of success or failure.
func (s *Service) ManualStatusChange(ctx context.Context, tenant tenantctx.Tenant, id snowflake.ID, status domain.Status) (*domain.Transaction, *domain.StatusEntry, error) {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return nil, nil, err
	}
	record, err := s.Get(ctx, tenant.ID, id)
	if err != nil {
		return nil, nil, err
	}
	entry, err := s.SetStatus(ctx, tenant.ID, record.ID, status, map[string]any{"source": domain.SourceManual})
	if err != nil {
		return nil, nil, err
	}

	switch status {
	case domain.StatusApproved:
		err = s.notifyPayable(ctx, tenant, *record, func(p payabledomain.Payable) error {
			return p.OnPaymentSuccess(ctx, s.settings.Get().PaidOrderStatus)
		})
	case domain.StatusRejected, domain.StatusCanceled:
		err = s.notifyPayable(ctx, tenant, *record, func(p payabledomain.Payable) error {
			return p.OnPaymentFailed(ctx)
		})
	}
	return record, entry, err
}

// SyncFromPayableStatus mirrors a payable's own status change onto its latest transaction while that is still PENDING.
func (s *Service) SyncFromPayableStatus(ctx context.Context, tenant tenantctx.Tenant, ref payabledomain.Ref, payableStatus string) (*domain.StatusEntry, error) {
	record, err := s.FindLatestForPayable(ctx, tenant.ID, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	mapped, ok := s.settings.Get().PayableStatusMap[strings.ToLower(strings.TrimSpace(payableStatus))]
	if !ok {
		return nil, nil
	}
	target, err := domain.ParseStatus(mapped)
	if err != nil {
		return nil, err
	}

	current, err := s.CurrentStatus(ctx, tenant.ID, record.ID)
	if err != nil {
		return nil, err
	}
	if current != domain.StatusPending {
		return nil, nil
	}

	entry, err := s.appendStatus(ctx, tenant.ID, record.ID, target, map[string]any{
		"source":         domain.SourcePayable,
		"payable_status": payableStatus,
	}, true)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("payment_transaction.synced_from_payable",
		zap.String("transaction_id", record.ID.String()),
		zap.String("payable", ref.String()),
		zap.String("payable_status", payableStatus),
		zap.String("transaction_status", string(target)),
	)
	return entry, nil
}

func (s *Service) notifyPayable(ctx context.Context, tenant tenantctx.Tenant, record domain.Transaction, fn func(payabledomain.Payable) error) error {
	ref, ok := record.PayableRef()
	if !ok || s.payables == nil {
		return nil
	}
	payable, err := s.payables.Resolve(ctx, tenant, ref)
	if errors.Is(err, payabledomain.ErrNotFound) || errors.Is(err, payabledomain.ErrUnsupported) {
		s.logger(ctx).Warn("payment_transaction.payable.unresolved",
			zap.String("transaction_id", record.ID.String()),
			zap.String("payable", ref.String()),
			zap.Error(err),
		)
		return nil
	}
	if err != nil {
		return err
	}
	return fn(payable)
}

func (s *Service) newEntry(record *domain.Transaction, status domain.Status, metadata map[string]any, now time.Time) *domain.StatusEntry {
	meta := datatypes.JSONMap{}
	for k, v := range metadata {
		meta[k] = v
	}
	return &domain.StatusEntry{
		ID:            s.genID.Generate(),
		TenantID:      record.TenantID,
		TransactionID: record.ID,
		Status:        status,
		Metadata:      meta,
		CreatedAt:     now,
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
