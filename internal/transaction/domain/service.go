package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

type CreateRequest struct {
	TenantID  snowflake.ID
	PayformID string
	// Reference is used verbatim when set; otherwise one is generated.
	Reference string
	Amount    int64
	Currency  string
	Metadata  map[string]any
	Payable   *payabledomain.Ref
	ExpiresAt *time.Time
	// Manual starts the history at MANUAL instead of PENDING.
	Manual bool
}

type ListRequest struct {
	TenantID  snowflake.ID
	PayformID string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	Items         []Transaction `json:"items"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	HasMore       bool          `json:"has_more"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Transaction, error)
	Get(ctx context.Context, tenantID, id snowflake.ID) (*Transaction, error)
	FindByReference(ctx context.Context, tenantID snowflake.ID, reference string) (*Transaction, error)
	FindLatestForPayable(ctx context.Context, tenantID snowflake.ID, ref payabledomain.Ref) (*Transaction, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)

	SetStatus(ctx context.Context, tenantID, id snowflake.ID, status Status, metadata map[string]any) (*StatusEntry, error)
	Pay(ctx context.Context, tenantID, id snowflake.ID, metadata map[string]any) (*StatusEntry, error)
	CurrentStatus(ctx context.Context, tenantID, id snowflake.ID) (Status, error)
	History(ctx context.Context, tenantID, id snowflake.ID) ([]StatusEntry, error)

	SetExternalID(ctx context.Context, tenantID, id snowflake.ID, externalID string) error
	SetExpiresAt(ctx context.Context, tenantID, id snowflake.ID, expiresAt time.Time) error

	// ListExpiredPending only returns transactions that carry a payable reference.
	ListExpiredPending(ctx context.Context, tenantID snowflake.ID, now time.Time, afterID snowflake.ID, limit int) ([]Transaction, error)
	TenantsWithExpiredPending(ctx context.Context, now time.Time) ([]snowflake.ID, error)

	ManualStatusChange(ctx context.Context, tenant tenantctx.Tenant, id snowflake.ID, status Status) (*Transaction, *StatusEntry, error)
	SyncFromPayableStatus(ctx context.Context, tenant tenantctx.Tenant, ref payabledomain.Ref, payableStatus string) (*StatusEntry, error)
}

var (
	ErrNotFound           = errors.New("transaction_not_found")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidPayform     = errors.New("invalid_payform")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrDuplicateReference = errors.New("duplicate_reference")
	ErrAlreadySet         = errors.New("field_already_set")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
)
