package enzona

import (
	"context"
	"strings"

	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/gatewayhub"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

const (
	ID = "enzona-pgh-client"
	// hubGateway names the gateway behind the hub.
	hubGateway = "enzona"
)

var desc = base.Descriptor{
	ID:          ID,
	Name:        "Enzona",
	Description: "Pago por enzona",
	Feature:     featuredomain.FeatureEnzonaPayform,
}

func Factory(deps base.Deps) domain.Factory {
	return func(ctx context.Context, tenant tenantctx.Tenant) (domain.PayForm, error) {
		return gatewayhub.New(ctx, deps, tenant, desc, gatewayhub.Options{
			Tokens:       gatewayhub.TrustCache,
			Credentials:  gatewayhub.AppCredentials,
			BuildPayload: buildPayload,
		}, nil)
	}
}

func buildPayload(_ context.Context, c *gatewayhub.Client, tx *txdomain.Transaction, payable payabledomain.Payable, req domain.CreateTransactionRequest) (map[string]any, error) {
	returnBase := strings.TrimRight(strings.TrimSpace(req.ReturnBaseURL), "/")
	if returnBase == "" {
		returnBase = c.Deps().CallbackBaseURL
	}

	payableID := ""
	if payable != nil {
		payableID = payable.Ref().ID
	}

	var shipping int64
	items := []map[string]any{}
	if orderable, ok := payable.(payabledomain.Orderable); ok {
		shipping = orderable.ShippingCost()
		for _, item := range orderable.Items() {
			name := item.Name
			if name == "" {
				name = "Item"
			}
			description := item.Description
			if description == "" {
				description = name
			}
			quantity := item.Quantity
			if quantity <= 0 {
				quantity = 1
			}
			items = append(items, map[string]any{
				"name":        name,
				"quantity":    quantity,
				"price":       float64(item.Price) / 100,
				"description": description,
				"tax":         0.0,
			})
		}
	}

	return map[string]any{
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"reference":   tx.Reference,
		"payform_id":  hubGateway,
		"urlCallback": c.CallbackURL(),
		"data": map[string]any{
			"urlSuccess":  returnBase + "/payment-success?order=" + payableID,
			"urlFailed":   returnBase + "/payment-failed",
			"description": c.Summary().Description,
			"shipping":    shipping,
			"items":       items,
		},
	}, nil
}
