package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	featurerepository "github.com/smallbiznis/payforms/internal/feature/repository"
	featureservice "github.com/smallbiznis/payforms/internal/feature/service"
	"github.com/smallbiznis/payforms/internal/observability"
	"github.com/smallbiznis/payforms/internal/order"
	orderrepository "github.com/smallbiznis/payforms/internal/order/repository"
	orderservice "github.com/smallbiznis/payforms/internal/order/service"
	"github.com/smallbiznis/payforms/internal/payable"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform"
	"github.com/smallbiznis/payforms/internal/payform/base"
	payformrepository "github.com/smallbiznis/payforms/internal/payform/repository"
	payformservice "github.com/smallbiznis/payforms/internal/payform/service"
	"github.com/smallbiznis/payforms/internal/reference"
	"github.com/smallbiznis/payforms/internal/seed"
	tenantdomain "github.com/smallbiznis/payforms/internal/tenant/domain"
	tenantrepository "github.com/smallbiznis/payforms/internal/tenant/repository"
	tenantservice "github.com/smallbiznis/payforms/internal/tenant/service"
	"github.com/smallbiznis/payforms/internal/testutil"
	txrepository "github.com/smallbiznis/payforms/internal/transaction/repository"
	txservice "github.com/smallbiznis/payforms/internal/transaction/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	engine   *gin.Engine
	tenantID string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupDB(t)
	node := testutil.Node(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	settings := config.NewStaticSettingsHolder(config.DefaultPayformsSettings())

	orderRepo := orderrepository.Provide()
	payables, err := payable.NewRegistry(payable.Params{Resolvers: []payabledomain.Resolver{
		order.NewResolver(order.ResolverParams{DB: db, Log: log, Repo: orderRepo, Clock: clk, Settings: settings}),
	}})
	require.NoError(t, err)

	transactions := txservice.New(txservice.Params{
		DB: db, Log: log, GenID: node, Repo: txrepository.Provide(), Clock: clk, Settings: settings, Payables: payables,
	})
	payformRepo := payformrepository.Provide()
	deps := base.Deps{
		DB:              db,
		Log:             log,
		GenID:           node,
		Repo:            payformRepo,
		Transactions:    transactions,
		Payables:        payables,
		Settings:        settings,
		Clock:           clk,
		HTTPClient:      &http.Client{Timeout: time.Second},
		CallbackBaseURL: "https://shop.test",
	}
	registry, err := payform.NewRegistry(deps, log)
	require.NoError(t, err)

	catalog := reference.NewCatalog(reference.NewRepository(db))
	payforms := payformservice.New(payformservice.Params{
		DB: db, Log: log, Registry: registry, Repo: payformRepo, Clock: clk, Catalog: catalog,
	})
	features := featureservice.New(featureservice.Params{
		DB: db, Log: log, GenID: node, Repo: featurerepository.Provide(), Clock: clk,
	})
	tenants := tenantservice.New(tenantservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     tenantrepository.Provide(),
		Clock:    clk,
		Catalog:  catalog,
		Features: features,
		Payforms: seed.New(seed.Params{DB: db, Log: log, Registry: registry, Repo: payformRepo, Clock: clk}),
	})
	orders := orderservice.New(orderservice.Params{
		DB: db, Log: log, GenID: node, Repo: orderRepo, Clock: clk, Settings: settings,
		Payments: order.NewPaymentStarter(payforms),
	})

	engine := NewEngine(observability.Config{}, nil)
	NewServer(ServerParams{
		Gin:          engine,
		PayformSvc:   payforms,
		Transactions: transactions,
		OrderSvc:     orders,
		TenantSvc:    tenants,
		FeatureSvc:   features,
		Catalog:      catalog,
	})

	ts := &testServer{engine: engine}
	var created struct {
		Data tenantdomain.Tenant `json:"data"`
	}
	rec := ts.do(t, http.MethodPost, "/admin/tenants", map[string]any{"name": "Dulcería", "base_currency": "CUP"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	ts.tenantID = created.Data.ID.String()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequestWithContext(context.Background(), method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if ts.tenantID != "" {
		req.Header.Set(HeaderTenant, ts.tenantID)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) grant(t *testing.T, code string) {
	t.Helper()
	rec := ts.do(t, http.MethodPut, "/admin/tenants/"+ts.tenantID+"/features/"+code, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	decode(t, rec, &resp)
	return resp.Error
}

func TestHealthAndFallback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, rec).Type)
}

func TestTenantIsRequired(t *testing.T) {
	ts := newTestServer(t)
	tenantID := ts.tenantID

	ts.tenantID = ""
	rec := ts.do(t, http.MethodGet, "/api/payforms/actives", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tenant_required", errorType(t, rec).Errors[0].Code)

	rec = ts.do(t, http.MethodGet, "/api/payforms/actives?tenant="+tenantID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/payforms/actives?tenant=123456", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCurrencies(t *testing.T) {
	ts := newTestServer(t)
	ts.tenantID = ""

	rec := ts.do(t, http.MethodGet, "/api/currencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"CUP"`)
}

func TestActivePayformsListsSeededCash(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/payforms/actives?currency=CUP", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []struct {
			ID         string   `json:"id"`
			Currencies []string `json:"currencies"`
		} `json:"data"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "cash", resp.Data[0].ID)
	assert.Equal(t, []string{"CUP"}, resp.Data[0].Currencies)

	rec = ts.do(t, http.MethodGet, "/api/payforms/actives?currency=USD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Empty(t, resp.Data)
}

func TestAdminPayformRoutesRequireFeatures(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/payforms", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.grant(t, featuredomain.FeatureListPayforms)
	rec = ts.do(t, http.MethodGet, "/api/payforms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payform_id":"cash"`)
	assert.NotContains(t, rec.Body.String(), `"payform_id":"enzona"`)

	rec = ts.do(t, http.MethodGet, "/api/payforms/cash", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdatePayform(t *testing.T) {
	ts := newTestServer(t)
	ts.grant(t, featuredomain.FeatureUpdatePayforms)

	active := true
	rec := ts.do(t, http.MethodPut, "/api/payforms/cash", map[string]any{
		"description": "Pay on delivery",
		"active":      active,
		"currencies":  []string{"CUP"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := errorType(t, rec)
	require.NotEmpty(t, payload.Errors)
	assert.Equal(t, "name", payload.Errors[0].Field)

	rec = ts.do(t, http.MethodPut, "/api/payforms/cash", map[string]any{
		"name":        "Cash",
		"description": "Pay on delivery",
		"active":      active,
		"currencies":  []string{"XYZ"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_currency", errorType(t, rec).Errors[0].Code)

	rec = ts.do(t, http.MethodPut, "/api/payforms/cash", map[string]any{
		"name":             "Cash",
		"description":      "Pay on delivery",
		"active":           active,
		"currencies":       []string{"cup", "usd"},
		"expiration_hours": 24,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data struct {
			Currencies      []string `json:"currencies"`
			ExpirationHours *int     `json:"expiration_hours"`
		} `json:"data"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, []string{"CUP", "USD"}, resp.Data.Currencies)
	require.NotNil(t, resp.Data.ExpirationHours)
	assert.Equal(t, 24, *resp.Data.ExpirationHours)

	rec = ts.do(t, http.MethodGet, "/api/payforms/enzona", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderPaymentFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", map[string]any{
		"code":       "ORD-7",
		"payform_id": "cash",
		"items":      []map[string]any{{"name": "Cake", "quantity": 2, "price": 500}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct {
			Order struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"order"`
			Payment struct {
				Type        string `json:"type"`
				Transaction struct {
					ID        string `json:"id"`
					Reference string `json:"reference"`
					Amount    int64  `json:"amount"`
					Status    string `json:"status"`
				} `json:"transaction"`
			} `json:"payment"`
		} `json:"data"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "pending", created.Data.Order.Status)
	assert.Equal(t, "none", created.Data.Payment.Type)
	assert.Equal(t, "ORD-7", created.Data.Payment.Transaction.Reference)
	assert.Equal(t, int64(1000), created.Data.Payment.Transaction.Amount)
	txID := created.Data.Payment.Transaction.ID
	require.NotEmpty(t, txID)

	rec = ts.do(t, http.MethodGet, "/api/payment-transactions?payform_id=cash", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reference":"ORD-7"`)

	rec = ts.do(t, http.MethodGet, "/api/payment-transactions/"+txID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)

	change := map[string]any{"status": "approved"}
	rec = ts.do(t, http.MethodPut, "/api/payment-transactions/"+txID+"/manual-status-change", change)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.grant(t, featuredomain.FeatureManualStatusChange)
	rec = ts.do(t, http.MethodPut, "/api/payment-transactions/"+txID+"/manual-status-change", map[string]any{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/payment-transactions/"+txID+"/manual-status-change", change)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/orders/"+created.Data.Order.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"paid"`)
}

func TestOrderWithInactivePayformStillCreated(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", map[string]any{
		"payform_id": "enzona",
		"items":      []map[string]any{{"name": "Cake", "quantity": 1, "price": 500}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Data struct {
			Order struct {
				ID string `json:"id"`
			} `json:"order"`
		} `json:"data"`
		PaymentError errorPayload `json:"payment_error"`
	}
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Data.Order.ID)
	assert.Equal(t, "payform_unavailable", resp.PaymentError.Type)
}

func TestCommitRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/payforms/unknown/commit", map[string]any{"reference": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/payforms/enzona/commit", map[string]any{"reference": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/payforms/cash/commit", map[string]any{"reference": "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncPayableStatusWithoutTransaction(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/payables/order/42/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":false`)

	rec = ts.do(t, http.MethodPost, "/api/payables/order/42/status", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
