package gatewayhub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/gatewayhub"
	"github.com/smallbiznis/payforms/internal/payform/payformtest"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hubDescriptor = base.Descriptor{ID: "hub-test", Name: "Hub"}

type hub struct {
	server       *httptest.Server
	tokenCalls   atomic.Int32
	paymentCalls atomic.Int32
	// paymentStatus returns the status for the nth (1-based) payment call.
	paymentStatus func(n int32) int
	lastAuth      atomic.Value
	lastPayload   atomic.Value
	envelope      map[string]any
	expiresIn     int64
}

func newHub(t *testing.T) *hub {
	t.Helper()
	h := &hub{
		paymentStatus: func(int32) int { return http.StatusOK },
		envelope: map[string]any{"data": map[string]any{
			"type":        "redirect",
			"data":        map[string]any{"url": "https://pay.test/checkout", "session": "abc"},
			"external_id": "ext-1",
		}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/token", func(w http.ResponseWriter, r *http.Request) {
		n := h.tokenCalls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["app_secret"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"data": map[string]any{
			"access_token": "token-" + strconv.Itoa(int(n)),
			"token_type":   "Bearer",
			"expires_in":   h.expiresIn,
		}})
	})
	mux.HandleFunc("/payments", func(w http.ResponseWriter, r *http.Request) {
		n := h.paymentCalls.Add(1)
		h.lastAuth.Store(r.Header.Get("Authorization"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.lastPayload.Store(body)
		status := h.paymentStatus(n)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		writeJSON(w, h.envelope)
	})
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func buildPayload(_ context.Context, _ *gatewayhub.Client, tx *txdomain.Transaction, _ payabledomain.Payable, _ domain.CreateTransactionRequest) (map[string]any, error) {
	return map[string]any{"reference": tx.Reference, "amount": tx.Amount}, nil
}

func newClient(t *testing.T, f *payformtest.Fixture, h *hub, opts gatewayhub.Options) *gatewayhub.Client {
	t.Helper()
	ctx := context.Background()
	opts.BuildPayload = buildPayload
	c, err := gatewayhub.New(ctx, f.Deps, f.Tenant, hubDescriptor, opts, nil)
	require.NoError(t, err)
	require.NoError(t, c.SetArg(ctx, "url", h.server.URL))
	require.NoError(t, c.SetArg(ctx, "clientID", "1001"))
	require.NoError(t, c.SetArg(ctx, "clientSecret", "s3cret"))
	return c
}

func TestCreateTransactionMapsHubResponse(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	c := newClient(t, f, h, gatewayhub.Options{})
	ctx := context.Background()

	resp, err := c.CreateTransaction(ctx, domain.CreateTransactionRequest{Amount: 2500, Currency: "CUP"})
	require.NoError(t, err)

	assert.Equal(t, domain.ResponseRedirect, resp.Type)
	assert.Equal(t, "https://pay.test/checkout", resp.Data["url"])
	assert.Equal(t, "abc", resp.Data["session"])
	assert.Equal(t, txdomain.StatusPending, resp.Transaction.Status)
	assert.Equal(t, "Bearer token-1", h.lastAuth.Load())
	assert.Equal(t, int32(1), h.tokenCalls.Load())

	payload := h.lastPayload.Load().(map[string]any)
	assert.Equal(t, resp.Transaction.Reference, payload["reference"])

	tx, err := f.Deps.Transactions.FindByReference(ctx, f.Tenant.ID, resp.Transaction.Reference)
	require.NoError(t, err)
	require.NotNil(t, tx.ExternalID)
	assert.Equal(t, "ext-1", *tx.ExternalID)
}

func TestTrustCacheReusesToken(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	c := newClient(t, f, h, gatewayhub.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.CreateTransaction(ctx, domain.CreateTransactionRequest{Amount: 100, Currency: "CUP"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), h.tokenCalls.Load())
	assert.Equal(t, int32(3), h.paymentCalls.Load())
}

func TestUnauthorizedRefreshesTokenAndRetriesOnce(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	h.paymentStatus = func(n int32) int {
		if n == 1 {
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}
	c := newClient(t, f, h, gatewayhub.Options{})

	resp, err := c.CreateTransaction(context.Background(), domain.CreateTransactionRequest{Amount: 100, Currency: "CUP"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseRedirect, resp.Type)
	assert.Equal(t, int32(2), h.paymentCalls.Load())
	assert.Equal(t, int32(2), h.tokenCalls.Load())
	assert.Equal(t, "Bearer token-2", h.lastAuth.Load())
	assert.Equal(t, "token-2", c.GetArg("access_token"))
}

func TestForbiddenOnRetryIsFatal(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	h.paymentStatus = func(int32) int { return http.StatusForbidden }
	c := newClient(t, f, h, gatewayhub.Options{})

	resp, err := c.CreateTransaction(context.Background(), domain.CreateTransactionRequest{Amount: 100, Currency: "CUP"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
	var creationErr *domain.TransactionCreationError
	assert.ErrorAs(t, err, &creationErr)
	assert.Equal(t, int32(2), h.paymentCalls.Load())
}

func TestServerErrorIsNotRetried(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	h.paymentStatus = func(int32) int { return http.StatusBadGateway }
	c := newClient(t, f, h, gatewayhub.Options{})

	_, err := c.CreateTransaction(context.Background(), domain.CreateTransactionRequest{Amount: 100, Currency: "CUP"})
	assert.ErrorIs(t, err, domain.ErrRequestFailed)
	assert.Equal(t, int32(1), h.paymentCalls.Load())
}

func TestTrackExpiryRefreshesStaleToken(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	h.expiresIn = 600
	c := newClient(t, f, h, gatewayhub.Options{Tokens: gatewayhub.TrackExpiry, RefreshBuffer: time.Minute})
	ctx := context.Background()

	token, err := c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, payformtest.Now.Add(9*time.Minute).Format(time.RFC3339), c.GetArg("token_expires_at"))

	f.Clock.Advance(8 * time.Minute)
	token, err = c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	f.Clock.Advance(2 * time.Minute)
	token, err = c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}

func TestTokenRefreshFailure(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	c := newClient(t, f, h, gatewayhub.Options{})
	require.NoError(t, c.SetArg(context.Background(), "clientSecret", "wrong"))

	_, err := c.AccessToken(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
	assert.Nil(t, c.GetArg("access_token"))
}

func TestProcessPaymentResponse(t *testing.T) {
	tx := domain.TransactionSnapshot{ID: "1", Reference: "R", Status: txdomain.StatusPending}
	envelope := func(typ string, data map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{"type": typ, "data": data, "message": "go on"}}
	}

	qr := gatewayhub.ProcessPaymentResponse(envelope("qr", map[string]any{"content": "QRDATA"}), tx)
	assert.Equal(t, domain.ResponseQR, qr.Type)
	assert.Equal(t, "QRDATA", qr.Data["content"])
	require.NotNil(t, qr.Message)
	assert.Equal(t, "go on", *qr.Message)

	form := gatewayhub.ProcessPaymentResponse(envelope("form", map[string]any{"fields": []any{"card"}}), tx)
	assert.Equal(t, domain.ResponseForm, form.Type)
	assert.Equal(t, []any{"card"}, form.Data["fields"])

	component := gatewayhub.ProcessPaymentResponse(envelope("component", map[string]any{"component": "Widget", "props": map[string]any{"a": 1.0}}), tx)
	assert.Equal(t, "Widget", component.Data["component"])
	assert.Equal(t, map[string]any{"a": 1.0}, component.Data["props"])

	info := gatewayhub.ProcessPaymentResponse(envelope("info", map[string]any{"instructions": "Wire it", "email": "pay@shop.test", "iban": "X"}), tx)
	assert.Equal(t, domain.ResponseInfo, info.Type)
	assert.Equal(t, "Wire it", info.Data["instructions"])
	assert.Equal(t, "X", info.Data["iban"])

	unknown := gatewayhub.ProcessPaymentResponse(envelope("carrier-pigeon", nil), tx)
	assert.Equal(t, domain.ResponseNone, unknown.Type)
	assert.Equal(t, tx, unknown.Transaction)

	empty := gatewayhub.ProcessPaymentResponse(map[string]any{}, tx)
	assert.Equal(t, domain.ResponseNone, empty.Type)
	assert.Nil(t, empty.Message)
}
