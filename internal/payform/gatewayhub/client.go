package gatewayhub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/payforms/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

var tracer = otel.Tracer("github.com/smallbiznis/payforms/internal/payform/gatewayhub")

// HubArgs are the connection arguments every hub-backed payform needs.
type HubArgs struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	ClientID     string `mapstructure:"clientID" validate:"required,numeric"`
	ClientSecret string `mapstructure:"clientSecret" validate:"required"`
}

// PayloadBuilder produces the gateway-specific payment request body.
type PayloadBuilder func(ctx context.Context, c *Client, tx *txdomain.Transaction, payable payabledomain.Payable, req domain.CreateTransactionRequest) (map[string]any, error)

type Options struct {
	PaymentPath   string
	TokenPath     string
	Tokens        TokenStrategy
	Credentials   CredentialStyle
	Scope         string
	RefreshBuffer time.Duration
	BuildPayload  PayloadBuilder
}

func (o Options) withDefaults() Options {
	if o.PaymentPath == "" {
		o.PaymentPath = "/payments"
	}
	if o.TokenPath == "" {
		o.TokenPath = "/apps/token"
	}
	if o.Scope == "" {
		o.Scope = "*"
	}
	return o
}

// Client is a payform backed by an OAuth-protected gateway hub.
type Client struct {
	*base.PayForm

	opts Options
}

// New loads the payform definition and binds the hub protocol to it.
// Variants that replace create or commit handling pass their own handler, which usually wraps the returned Client.
func New(ctx context.Context, deps base.Deps, tenant tenantctx.Tenant, desc base.Descriptor, opts Options, handler func(*Client) base.Handler) (*Client, error) {
	if desc.NewArgs == nil {
		desc.NewArgs = func() any { return &HubArgs{} }
	}
	c := &Client{opts: opts.withDefaults()}
	var h base.Handler = c
	if handler != nil {
		h = handler(c)
	}
	form, err := base.Load(ctx, deps, tenant, desc, h)
	if err != nil {
		return nil, err
	}
	c.PayForm = form
	return c, nil
}

func (c *Client) now() time.Time {
	return c.Deps().Clock.Now()
}

func (c *Client) metrics() *obsmetrics.Metrics {
	return c.Deps().Metrics
}

// HubArgs decodes the hub connection arguments.
func (c *Client) HubArgs() (HubArgs, error) {
	var args HubArgs
	err := c.Args(&args)
	return args, err
}

// MakePaymentRequest posts payload with the bearer token. A 401 or 403 refreshes the token and
// retries exactly once; any failure on the retry is final.
func (c *Client) MakePaymentRequest(ctx context.Context, url string, payload any, isRetry bool) (map[string]any, error) {
	log := c.Logger(ctx)

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	tokenType, _ := c.GetArg(argTokenType).(string)
	if strings.TrimSpace(tokenType) == "" {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req, "gatewayhub.payment")
	if err != nil {
		log.Error("gatewayhub.request.failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRequestFailed, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if isRetry {
			log.Error("gatewayhub.request.unauthorized", zap.Int("status", resp.StatusCode), zap.Bool("retry", true))
			return nil, fmt.Errorf("%w: hub rejected refreshed token with %d", domain.ErrUpstreamAuth, resp.StatusCode)
		}
		log.Warn("gatewayhub.request.unauthorized", zap.Int("status", resp.StatusCode), zap.Bool("retry", false))
		if err := c.InvalidateToken(ctx); err != nil {
			return nil, err
		}
		if _, err := c.AccessToken(ctx); err != nil {
			return nil, err
		}
		return c.MakePaymentRequest(ctx, url, payload, true)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		log.Error("gatewayhub.request.rejected", zap.Int("status", resp.StatusCode), zap.String("body", truncate(raw)))
		return nil, fmt.Errorf("%w: hub returned %d: %s", domain.ErrRequestFailed, resp.StatusCode, truncate(raw))
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid json response: %w", domain.ErrRequestFailed, err)
	}
	return out, nil
}

// ProcessPaymentResponse maps a hub envelope {data:{type, data, message}} to a PaymentResponse.
func ProcessPaymentResponse(envelope map[string]any, tx domain.TransactionSnapshot) *domain.PaymentResponse {
	inner, _ := envelope["data"].(map[string]any)
	typ, _ := inner["type"].(string)
	message, _ := inner["message"].(string)
	data, _ := inner["data"].(map[string]any)

	switch domain.ResponseType(typ) {
	case domain.ResponseRedirect:
		return domain.Redirect(tx, stringField(data, "url"), message, without(data, "url"))
	case domain.ResponseQR:
		return domain.QR(tx, stringField(data, "content"), message, without(data, "content"))
	case domain.ResponseForm:
		return domain.Form(tx, data["fields"], message, without(data, "fields"))
	case domain.ResponseComponent:
		return domain.Component(tx, stringField(data, "component"), data["props"], message, without(data, "component", "props"))
	case domain.ResponseInfo:
		return domain.Info(tx, stringField(data, "instructions"), stringField(data, "email"), message, without(data, "instructions", "email"))
	default:
		return domain.None(tx, message)
	}
}

// HandleCreateTransaction posts the variant payload to the hub payment endpoint.
func (c *Client) HandleCreateTransaction(ctx context.Context, tx *txdomain.Transaction, payable payabledomain.Payable, req domain.CreateTransactionRequest) (*domain.PaymentResponse, error) {
	if c.opts.BuildPayload == nil {
		return nil, errors.New("gateway hub payload builder is not configured")
	}
	args, err := c.HubArgs()
	if err != nil {
		return nil, err
	}
	payload, err := c.opts.BuildPayload(ctx, c, tx, payable, req)
	if err != nil {
		return nil, err
	}
	envelope, err := c.MakePaymentRequest(ctx, joinURL(args.URL, c.opts.PaymentPath), payload, false)
	if err != nil {
		return nil, err
	}

	if inner, ok := envelope["data"].(map[string]any); ok {
		if externalID := stringField(inner, "external_id"); externalID != "" {
			if err := c.Deps().Transactions.SetExternalID(ctx, tx.TenantID, tx.ID, externalID); err != nil {
				c.Logger(ctx).Warn("gatewayhub.external_id.not_stored", zap.Error(err))
			}
		}
	}
	return ProcessPaymentResponse(envelope, domain.SnapshotOf(tx, txdomain.StatusPending)), nil
}

func (c *Client) do(ctx context.Context, req *http.Request, spanName string) (*http.Response, error) {
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", req.URL.Host),
			attribute.String("payform.id", c.ID()),
		),
	)
	defer span.End()

	req = req.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.Deps().HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

func joinURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func without(data map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func truncate(raw []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
