package gatewayhub

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"go.uber.org/zap"
)

// PayByReference approves the transaction behind a gateway reference when paid is set.
// Other outcomes are logged and ignored. An already approved transaction is a no-op.
func PayByReference(ctx context.Context, transactions txdomain.Service, tenantID snowflake.ID, reference string, paid bool, metadata map[string]any, log *zap.Logger) (*txdomain.StatusEntry, error) {
	tx, err := transactions.FindByReference(ctx, tenantID, reference)
	if err != nil {
		log.Warn("gatewayhub.webhook.transaction_lookup_failed", zap.String("reference", reference), zap.Error(err))
		return nil, err
	}
	log = log.With(zap.String("transaction_id", tx.ID.String()), zap.String("reference", reference))

	if !paid {
		log.Warn("gatewayhub.webhook.ignored", zap.Any("gateway_status", metadata["gateway_status"]))
		return nil, nil
	}

	current, err := transactions.CurrentStatus(ctx, tenantID, tx.ID)
	if err != nil {
		return nil, err
	}
	if current == txdomain.StatusApproved {
		log.Info("gatewayhub.webhook.duplicate")
		return nil, nil
	}

	entry, err := transactions.Pay(ctx, tenantID, tx.ID, metadata)
	if errors.Is(err, txdomain.ErrInvalidTransition) {
		if now, statusErr := transactions.CurrentStatus(ctx, tenantID, tx.ID); statusErr == nil && now == txdomain.StatusApproved {
			log.Info("gatewayhub.webhook.duplicate")
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}
