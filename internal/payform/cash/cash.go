package cash

import (
	"context"

	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

const ID = "cash"

var desc = base.Descriptor{
	ID:          ID,
	Name:        "Efectivo",
	Description: "Pago en efectivo",
	Feature:     featuredomain.FeatureCashPayform,
}

// Factory returns the cash payform constructor. Cash takes no arguments and never calls out.
func Factory(deps base.Deps) domain.Factory {
	return func(ctx context.Context, tenant tenantctx.Tenant) (domain.PayForm, error) {
		return base.Load(ctx, deps, tenant, desc, handler{})
	}
}

type handler struct{}

func (handler) HandleCreateTransaction(_ context.Context, tx *txdomain.Transaction, _ payabledomain.Payable, _ domain.CreateTransactionRequest) (*domain.PaymentResponse, error) {
	return domain.None(domain.SnapshotOf(tx, txdomain.StatusPending), ""), nil
}

func (handler) HandleCommitPayment(context.Context, domain.CommitRequest) (*txdomain.StatusEntry, error) {
	return nil, nil
}
