package order

import (
	"context"

	"github.com/smallbiznis/payforms/internal/order/domain"
	payformdomain "github.com/smallbiznis/payforms/internal/payform/domain"
	payformservice "github.com/smallbiznis/payforms/internal/payform/service"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

type paymentStarter struct {
	payforms *payformservice.Service
}

// NewPaymentStarter charges an order's total through the payform admin service.
func NewPaymentStarter(payforms *payformservice.Service) domain.PaymentStarter {
	return &paymentStarter{payforms: payforms}
}

func (s *paymentStarter) StartPayment(ctx context.Context, tenant tenantctx.Tenant, payformID string, order *domain.Order, req domain.CreateOrderRequest) (*payformdomain.PaymentResponse, error) {
	ref := order.Ref()
	return s.payforms.CreatePayment(ctx, tenant, payformID, payformservice.CreatePaymentRequest{
		Amount:        order.Total(),
		Currency:      order.Currency,
		Metadata:      req.Metadata,
		Payable:       &ref,
		ReturnBaseURL: req.ReturnBaseURL,
	})
}
