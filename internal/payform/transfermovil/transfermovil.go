package transfermovil

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/gatewayhub"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	ID = "transfermovil"

	createPaymentPath = "api/create-payment"
	paidStatus        = "PAID"
)

// Args are the Transfermovil merchant credentials.
type Args struct {
	Source       string `mapstructure:"source" validate:"required,numeric"`
	Username     string `mapstructure:"username" validate:"required"`
	ClientID     string `mapstructure:"clientID" validate:"required,numeric"`
	ClientSecret string `mapstructure:"clientSecret" validate:"required"`
	PublicKey    string `mapstructure:"publicKey" validate:"required"`
	URL          string `mapstructure:"url" validate:"required,url"`
}

var desc = base.Descriptor{
	ID:          ID,
	Name:        "Transfermovil",
	Description: "Pago por Transfermovil",
	Feature:     featuredomain.FeatureTransfermovilPayform,
	NewArgs:     func() any { return &Args{} },
}

type PayForm struct {
	client *gatewayhub.Client
}

func Factory(deps base.Deps) domain.Factory {
	return func(ctx context.Context, tenant tenantctx.Tenant) (domain.PayForm, error) {
		return gatewayhub.New(ctx, deps, tenant, desc, gatewayhub.Options{
			TokenPath:   "/oauth/token",
			Tokens:      gatewayhub.TrackExpiry,
			Credentials: gatewayhub.ClientCredentials,
			Scope:       "*",
		}, func(c *gatewayhub.Client) base.Handler {
			return &PayForm{client: c}
		})
	}
}

// HandleCreateTransaction requests a payment and answers with the QR image the customer scans.
func (p *PayForm) HandleCreateTransaction(ctx context.Context, tx *txdomain.Transaction, _ payabledomain.Payable, _ domain.CreateTransactionRequest) (*domain.PaymentResponse, error) {
	var args Args
	if err := p.client.Args(&args); err != nil {
		return nil, err
	}

	currency := tx.Currency
	if currency == "" {
		currency = "USD"
	}
	payload := map[string]any{
		"amount":      float64(tx.Amount) / 100,
		"currency":    currency,
		"description": p.client.Summary().Description,
		"phone":       strings.TrimLeft(customerPhone(tx.Metadata), "+"),
		"validTime":   0,
		"source":      args.Source,
		"username":    args.Username,
		"externalID":  tx.Reference,
		"callback":    p.client.CallbackURL(),
	}

	url := strings.TrimRight(args.URL, "/") + "/" + createPaymentPath
	decoded, err := p.client.MakePaymentRequest(ctx, url, payload, false)
	if err != nil {
		p.client.Logger(ctx).Error("transfermovil.create_payment.failed", zap.Error(err))
		return nil, err
	}

	data, _ := decoded["data"].(map[string]any)
	encoded, _ := data["qrImage"].(string)
	if encoded == "" {
		return nil, fmt.Errorf("%w: missing qrImage", domain.ErrRequestFailed)
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid qrImage: %w", domain.ErrRequestFailed, err)
	}
	return domain.QR(domain.SnapshotOf(tx, txdomain.StatusPending), string(image), "", nil), nil
}

type webhookEnvelope struct {
	Encrypted string `json:"encrypted"`
}

type webhookData struct {
	Status     string `json:"status"`
	ExternalID string `json:"externalID"`
}

// HandleCommitPayment opens the RSA-signed callback body and approves PAID payments.
// Unreadable payloads are rejected before any transaction lookup.
func (p *PayForm) HandleCommitPayment(ctx context.Context, req domain.CommitRequest) (*txdomain.StatusEntry, error) {
	log := p.client.Logger(ctx)
	metrics := p.client.Deps().Metrics

	var args Args
	if err := p.client.Args(&args); err != nil {
		return nil, err
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil || envelope.Encrypted == "" {
		metrics.RecordWebhookRejected(ctx, ID, "invalid_payload")
		return nil, domain.ErrInvalidPayload
	}

	plain, err := OpenPayload(args.PublicKey, envelope.Encrypted)
	if err != nil {
		metrics.RecordWebhookRejected(ctx, ID, "invalid_signature")
		log.Warn("transfermovil.webhook.rejected", zap.Error(err))
		return nil, domain.ErrInvalidSignature
	}

	var data webhookData
	if err := json.Unmarshal(plain, &data); err != nil {
		metrics.RecordWebhookRejected(ctx, ID, "invalid_payload")
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	if data.Status != paidStatus {
		log.Info("transfermovil.webhook.ignored", zap.String("status", data.Status))
		return nil, nil
	}
	reference := strings.TrimSpace(data.ExternalID)
	if reference == "" {
		return nil, domain.ErrMissingReference
	}

	entry, err := gatewayhub.PayByReference(ctx, p.client.Deps().Transactions, p.client.Tenant().ID, reference, true, map[string]any{
		"source":         txdomain.SourceWebhook,
		"gateway_status": data.Status,
		"payform_id":     ID,
	}, log)
	if errors.Is(err, txdomain.ErrNotFound) {
		log.Warn("transfermovil.webhook.unknown_reference", zap.String("reference", reference))
	}
	return entry, err
}

func customerPhone(metadata map[string]any) string {
	customer, _ := metadata["customer"].(map[string]any)
	phone, _ := customer["phone"].(string)
	return phone
}
