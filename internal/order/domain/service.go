package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	payformdomain "github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

type CreateOrderRequest struct {
	Code          string               `json:"code"`
	Currency      string               `json:"currency"`
	ShippingCost  int64                `json:"shipping_cost"`
	Items         []payabledomain.Item `json:"items"`
	PayformID     string               `json:"payform_id"`
	ReturnBaseURL string               `json:"return_base_url"`
	Metadata      map[string]any       `json:"metadata"`
}

type CreateOrderResult struct {
	Order   *Order                         `json:"order"`
	Payment *payformdomain.PaymentResponse `json:"payment,omitempty"`
}

// PaymentStarter opens a payment on a payform for a freshly created order.
type PaymentStarter interface {
	StartPayment(ctx context.Context, tenant tenantctx.Tenant, payformID string, order *Order, req CreateOrderRequest) (*payformdomain.PaymentResponse, error)
}

type Service interface {
	Create(ctx context.Context, tenant tenantctx.Tenant, req CreateOrderRequest) (*CreateOrderResult, error)
	Get(ctx context.Context, tenant tenantctx.Tenant, id snowflake.ID) (*Order, error)
	// UpdateStatus moves the order to status unless it is already final.
	UpdateStatus(ctx context.Context, tenant tenantctx.Tenant, id snowflake.ID, status string) (*Order, error)
}
