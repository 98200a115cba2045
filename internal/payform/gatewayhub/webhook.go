package gatewayhub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallbiznis/payforms/internal/payform/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"go.uber.org/zap"
)

const SignatureHeader = "X-Webhook-Signature"

type webhookPayload struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header against HMAC-SHA256(secret, "<t>.<body>").
func VerifySignature(secret, header string, body []byte) bool {
	timestamp, signature, ok := parseSignature(header)
	if !ok || secret == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

// Sign builds a signature header for body; callers sending hub webhooks in tests use it.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp + "."))
	_, _ = mac.Write(body)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

// parseSignature accepts exactly the t and v1 fields, each once.
func parseSignature(header string) (string, string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", false
	}
	fields := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return "", "", false
		}
		key = strings.TrimSpace(key)
		if key != "t" && key != "v1" {
			return "", "", false
		}
		if _, dup := fields[key]; dup {
			return "", "", false
		}
		fields[key] = strings.TrimSpace(value)
	}
	if len(fields) != 2 || fields["t"] == "" || fields["v1"] == "" {
		return "", "", false
	}
	return fields["t"], fields["v1"], true
}

// VerifyWebhookSignature verifies the request against this payform's client secret.
func (c *Client) VerifyWebhookSignature(req domain.CommitRequest) bool {
	args, err := c.HubArgs()
	if err != nil {
		return false
	}
	return VerifySignature(args.ClientSecret, req.Header.Get(SignatureHeader), req.Body)
}

// HandleCommitPayment applies a signed hub webhook. Only status "paid" changes state; duplicate
// deliveries for an already approved transaction return nil without side effects.
func (c *Client) HandleCommitPayment(ctx context.Context, req domain.CommitRequest) (*txdomain.StatusEntry, error) {
	log := c.Logger(ctx)

	if !c.VerifyWebhookSignature(req) {
		c.metrics().RecordWebhookRejected(ctx, c.ID(), "invalid_signature")
		log.Warn("gatewayhub.webhook.rejected", zap.String("reason", "invalid_signature"))
		return nil, domain.ErrInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		c.metrics().RecordWebhookRejected(ctx, c.ID(), "invalid_payload")
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	reference := strings.TrimSpace(payload.Reference)
	if reference == "" {
		c.metrics().RecordWebhookRejected(ctx, c.ID(), "missing_reference")
		log.Warn("gatewayhub.webhook.rejected", zap.String("reason", "missing_reference"))
		return nil, domain.ErrMissingReference
	}

	return PayByReference(ctx, c.Deps().Transactions, c.Tenant().ID, reference, payload.Status == "paid", map[string]any{
		"source":         txdomain.SourceWebhook,
		"gateway_status": payload.Status,
		"payform_id":     c.ID(),
	}, log)
}
