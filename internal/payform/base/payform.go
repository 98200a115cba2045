package base

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	obslogger "github.com/smallbiznis/payforms/internal/observability/logger"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/db"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Descriptor describes a payform variant.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Feature     string
	// NewArgs returns a pointer to the variant's typed argument struct. Nil means the variant takes no arguments.
	NewArgs     func() any
	DefaultArgs map[string]any
}

// Handler is the variant-specific half of a payform.
type Handler interface {
	HandleCreateTransaction(ctx context.Context, tx *txdomain.Transaction, payable payabledomain.Payable, req domain.CreateTransactionRequest) (*domain.PaymentResponse, error)
	HandleCommitPayment(ctx context.Context, req domain.CommitRequest) (*txdomain.StatusEntry, error)
}

// PayForm carries the state and behavior every variant shares.
type PayForm struct {
	deps    Deps
	desc    Descriptor
	handler Handler
	tenant  tenantctx.Tenant
	log     *zap.Logger

	mu   sync.RWMutex
	def  domain.Definition
	args map[string]any
}

var _ domain.PayForm = (*PayForm)(nil)

// Load reads the tenant's definition for desc, creating an inactive one on first use.
func Load(ctx context.Context, deps Deps, tenant tenantctx.Tenant, desc Descriptor, handler Handler) (*PayForm, error) {
	deps = deps.withDefaults()
	if tenant.ID == 0 {
		return nil, txdomain.ErrInvalidTenant
	}
	if handler == nil {
		return nil, errors.New("payform handler is required")
	}

	def, err := deps.Repo.Find(ctx, deps.DB, tenant.ID, desc.ID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		def, err = createDefinition(ctx, deps, tenant, desc)
		if err != nil {
			return nil, err
		}
	}

	args := make(map[string]any, len(def.Args))
	for k, v := range def.Args {
		args[k] = v
	}
	return &PayForm{
		deps:    deps,
		desc:    desc,
		handler: handler,
		tenant:  tenant,
		log:     deps.Log.Named("payform." + desc.ID),
		def:     *def,
		args:    args,
	}, nil
}

func createDefinition(ctx context.Context, deps Deps, tenant tenantctx.Tenant, desc Descriptor) (*domain.Definition, error) {
	now := deps.Clock.Now()
	var hours *int
	if h := deps.Settings.Get().DefaultExpirationHours; h > 0 {
		hours = &h
	}
	args := datatypes.JSONMap{}
	for k, v := range desc.DefaultArgs {
		args[k] = v
	}
	def := &domain.Definition{
		ID:              deps.GenID.Generate(),
		TenantID:        tenant.ID,
		PayformID:       desc.ID,
		Name:            desc.Name,
		Description:     desc.Description,
		Icon:            desc.Icon,
		Active:          false,
		Currencies:      datatypes.JSONSlice[string]{},
		ExpirationHours: hours,
		Args:            args,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := deps.Repo.Insert(ctx, deps.DB, def); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		existing, findErr := deps.Repo.Find(ctx, deps.DB, tenant.ID, desc.ID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	deps.Log.Info("payform.definition.created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("payform_id", desc.ID),
	)
	return def, nil
}

func (p *PayForm) ID() string { return p.desc.ID }

func (p *PayForm) Tenant() tenantctx.Tenant { return p.tenant }

func (p *PayForm) RequiredFeature() string { return p.desc.Feature }

func (p *PayForm) Deps() Deps { return p.deps }

func (p *PayForm) Logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, p.log)
}

func (p *PayForm) Definition() domain.Definition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	def := p.def
	def.Args = datatypes.JSONMap{}
	for k, v := range p.args {
		def.Args[k] = v
	}
	def.Currencies = append(datatypes.JSONSlice[string]{}, p.def.Currencies...)
	return def
}

func (p *PayForm) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.def.Active
}

func (p *PayForm) Currencies() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string{}, p.def.Currencies...)
}

func (p *PayForm) SupportsCurrency(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	for _, c := range p.Currencies() {
		if strings.ToUpper(strings.TrimSpace(c)) == code {
			return true
		}
	}
	return false
}

// ExpirationHours is nil when transactions of this payform never expire.
func (p *PayForm) ExpirationHours() *int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.def.ExpirationHours == nil || *p.def.ExpirationHours <= 0 {
		return nil
	}
	h := *p.def.ExpirationHours
	return &h
}

func (p *PayForm) Summary() domain.Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.Summary{
		ID:          p.desc.ID,
		Name:        p.def.Name,
		Icon:        p.def.Icon,
		Description: p.def.Description,
		Currencies:  append([]string{}, p.def.Currencies...),
	}
}

func (p *PayForm) Rules() []domain.ArgRule {
	if p.desc.NewArgs == nil {
		return []domain.ArgRule{}
	}
	return RulesOf(p.desc.NewArgs())
}

// Configured reports whether the current arguments satisfy the variant schema.
func (p *PayForm) Configured() bool {
	p.mu.RLock()
	args := EffectiveArgs(p.args, p.sandboxActiveLocked())
	p.mu.RUnlock()
	return p.validate(args) == nil
}

// ValidateArgs checks a candidate argument map, as it would be stored, against the schema.
func (p *PayForm) ValidateArgs(args map[string]any) error {
	sandbox := p.deps.Sandbox && truthy(args[domain.SandboxToggle])
	return p.validate(EffectiveArgs(args, sandbox))
}

func (p *PayForm) validate(args map[string]any) error {
	if p.desc.NewArgs == nil {
		return nil
	}
	return DecodeArgs(args, p.desc.NewArgs())
}

// Args decodes the current effective arguments into out.
func (p *PayForm) Args(out any) error {
	p.mu.RLock()
	args := EffectiveArgs(p.args, p.sandboxActiveLocked())
	p.mu.RUnlock()
	return DecodeArgs(args, out)
}

func (p *PayForm) sandboxActiveLocked() bool {
	return p.deps.Sandbox && truthy(p.args[domain.SandboxToggle])
}

func (p *PayForm) keyLocked(key string) string {
	if key != domain.SandboxToggle && p.sandboxActiveLocked() {
		return key + domain.SandboxSuffix
	}
	return key
}

// GetArg reads an argument, transparently using its sandbox twin when sandbox mode is on.
func (p *PayForm) GetArg(key string) any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.args[p.keyLocked(key)]
}

// SetArg writes an argument through the same sandbox shadowing as GetArg and persists only that key.
// A nil value removes the key. The in-memory map is refreshed from the stored one, so values
// changed elsewhere since Load are picked up rather than written back.
func (p *PayForm) SetArg(ctx context.Context, key string, value any) error {
	p.mu.RLock()
	resolved := p.keyLocked(key)
	p.mu.RUnlock()

	merged, err := p.deps.Repo.MergeArgs(ctx, p.deps.DB, p.tenant.ID, p.desc.ID, map[string]any{resolved: value}, p.deps.Clock.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.args = merged
	p.mu.Unlock()
	return nil
}

// CallbackURL is the commit endpoint the gateway calls back for this tenant and payform.
func (p *PayForm) CallbackURL() string {
	return p.deps.CallbackBaseURL + "/api/payforms/" + p.desc.ID + "/commit?tenant=" + p.tenant.ID.String()
}

// CreateTransaction records a PENDING transaction, then hands it to the variant.
func (p *PayForm) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.PaymentResponse, error) {
	log := p.Logger(ctx)

	var payable payabledomain.Payable
	var reference string
	if req.Payable != nil && !req.Payable.IsZero() && p.deps.Payables != nil {
		resolved, err := p.deps.Payables.Resolve(ctx, p.tenant, *req.Payable)
		if err != nil {
			return nil, p.creationFailed(ctx, err)
		}
		payable = resolved
		if orderable, ok := resolved.(payabledomain.Orderable); ok {
			reference = orderable.Code()
		}
	}

	var expiresAt *time.Time
	if hours := p.ExpirationHours(); hours != nil {
		at := p.deps.Clock.Now().Add(time.Duration(*hours) * time.Hour)
		expiresAt = &at
	}

	tx, err := p.deps.Transactions.Create(ctx, txdomain.CreateRequest{
		TenantID:  p.tenant.ID,
		PayformID: p.desc.ID,
		Reference: reference,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
		Payable:   req.Payable,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, p.creationFailed(ctx, err)
	}

	resp, err := p.handler.HandleCreateTransaction(ctx, tx, payable, req)
	if err != nil {
		if isTimeout(err) {
			log.Warn("payform.transaction.gateway_timeout",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("reference", tx.Reference),
				zap.Error(err),
			)
			p.deps.Metrics.RecordTransactionCreated(ctx, p.desc.ID, "timeout")
			return domain.None(
				domain.SnapshotOf(tx, txdomain.StatusPending),
				"The payment gateway did not respond in time. The payment remains pending.",
			), nil
		}
		return nil, p.creationFailed(ctx, err)
	}
	if resp == nil {
		resp = domain.None(domain.SnapshotOf(tx, txdomain.StatusPending), "")
	}

	p.deps.Metrics.RecordTransactionCreated(ctx, p.desc.ID, "ok")
	log.Info("payform.transaction.created",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("reference", tx.Reference),
		zap.String("response_type", string(resp.Type)),
	)
	return resp, nil
}

func (p *PayForm) creationFailed(ctx context.Context, cause error) error {
	p.deps.Metrics.RecordTransactionCreated(ctx, p.desc.ID, "error")
	p.Logger(ctx).Error("payform.transaction.failed", zap.Error(cause))
	return &domain.TransactionCreationError{PayformID: p.desc.ID, Cause: cause}
}

// CommitPayment applies a gateway callback and propagates success to the payable.
func (p *PayForm) CommitPayment(ctx context.Context, req domain.CommitRequest) (*txdomain.StatusEntry, error) {
	log := p.Logger(ctx)

	entry, err := p.handler.HandleCommitPayment(ctx, req)
	if err != nil {
		p.deps.Metrics.RecordPaymentCommitted(ctx, p.desc.ID, "error")
		log.Warn("payform.payment.commit_failed", zap.Error(err))
		return nil, err
	}
	if entry == nil {
		p.deps.Metrics.RecordPaymentCommitted(ctx, p.desc.ID, "ignored")
		return nil, nil
	}

	p.deps.Metrics.RecordPaymentCommitted(ctx, p.desc.ID, string(entry.Status))
	log.Info("payform.payment.committed",
		zap.String("transaction_id", entry.TransactionID.String()),
		zap.String("status", string(entry.Status)),
	)

	if entry.Status == txdomain.StatusApproved {
		p.notifyPaid(ctx, entry)
	}
	return entry, nil
}

// notifyPaid failures are logged only; the payment itself is already recorded.
func (p *PayForm) notifyPaid(ctx context.Context, entry *txdomain.StatusEntry) {
	log := p.Logger(ctx).With(zap.String("transaction_id", entry.TransactionID.String()))
	if p.deps.Payables == nil {
		return
	}
	tx, err := p.deps.Transactions.Get(ctx, p.tenant.ID, entry.TransactionID)
	if err != nil {
		log.Error("payform.payable.notify_failed", zap.Error(err))
		return
	}
	ref, ok := tx.PayableRef()
	if !ok {
		return
	}
	payable, err := p.deps.Payables.Resolve(ctx, p.tenant, ref)
	if err != nil {
		log.Warn("payform.payable.unresolved", zap.String("payable", ref.String()), zap.Error(err))
		return
	}
	status := p.deps.Settings.Get().PaidOrderStatus
	if err := payable.OnPaymentSuccess(ctx, status); err != nil {
		log.Error("payform.payable.notify_failed", zap.String("payable", ref.String()), zap.Error(err))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
