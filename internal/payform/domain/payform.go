package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"gorm.io/gorm"
)

// Sandbox argument conventions shared by every payform.
const (
	SandboxSuffix = "_sandbox"
	SandboxToggle = "use_sandbox"
)

type CreateTransactionRequest struct {
	Amount   int64
	Currency string
	Metadata map[string]any
	Payable  *payabledomain.Ref
	// ReturnBaseURL is the storefront origin used for success and failure redirects.
	ReturnBaseURL string
}

// CommitRequest is the raw gateway callback as received.
type CommitRequest struct {
	Body   []byte
	Header http.Header
}

// PayForm is one configured payment method bound to one tenant.
type PayForm interface {
	ID() string
	Tenant() tenantctx.Tenant
	Definition() Definition
	Active() bool
	Currencies() []string
	SupportsCurrency(code string) bool
	ExpirationHours() *int
	RequiredFeature() string
	Summary() Summary

	Configured() bool
	ValidateArgs(args map[string]any) error
	Rules() []ArgRule
	GetArg(key string) any
	SetArg(ctx context.Context, key string, value any) error

	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*PaymentResponse, error)
	CommitPayment(ctx context.Context, req CommitRequest) (*txdomain.StatusEntry, error)
}

// Factory builds a tenant-bound payform instance.
type Factory func(ctx context.Context, tenant tenantctx.Tenant) (PayForm, error)

type UpdateDefinition struct {
	Name            string
	Description     string
	Icon            string
	Active          bool
	Currencies      []string
	ExpirationHours *int
	Args            map[string]any
	UpdatedAt       time.Time
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, payformID string) (*Definition, error)
	Insert(ctx context.Context, db *gorm.DB, def *Definition) error
	Update(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, payformID string, update UpdateDefinition) error
	MergeArgs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, payformID string, changes map[string]any, now time.Time) (map[string]any, error)
}
