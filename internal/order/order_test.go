package order_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/payforms/internal/config"
	"github.com/smallbiznis/payforms/internal/order"
	"github.com/smallbiznis/payforms/internal/order/domain"
	"github.com/smallbiznis/payforms/internal/order/repository"
	"github.com/smallbiznis/payforms/internal/order/service"
	"github.com/smallbiznis/payforms/internal/payable"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/cash"
	payformdomain "github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/payformtest"
	"github.com/smallbiznis/payforms/internal/payform/registry"
	payformservice "github.com/smallbiznis/payforms/internal/payform/service"
	"github.com/smallbiznis/payforms/internal/testutil"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	*payformtest.Fixture
	orders   domain.Service
	resolver *order.Resolver
}

func withOrders(t *testing.T, out **order.Resolver) payformtest.Option {
	return func(d *base.Deps) {
		resolver := order.NewResolver(order.ResolverParams{
			DB:       d.DB,
			Log:      zap.NewNop(),
			Repo:     repository.Provide(),
			Clock:    d.Clock,
			Settings: d.Settings,
		})
		lookup, err := payable.NewRegistry(payable.Params{Resolvers: []payabledomain.Resolver{resolver}})
		require.NoError(t, err)
		d.Payables = lookup
		*out = resolver
	}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	var resolver *order.Resolver
	f := payformtest.New(t, withOrders(t, &resolver))

	r := registry.New(zap.NewNop())
	require.NoError(t, r.Register(cash.ID, cash.Factory(f.Deps)))
	payforms := payformservice.New(payformservice.Params{
		DB:       f.DB,
		Log:      zap.NewNop(),
		Registry: r,
		Repo:     f.Deps.Repo,
		Clock:    f.Clock,
	})
	orders := service.New(service.Params{
		DB:       f.DB,
		Log:      zap.NewNop(),
		GenID:    f.Node,
		Repo:     repository.Provide(),
		Clock:    f.Clock,
		Settings: config.NewStaticSettingsHolder(config.DefaultPayformsSettings()),
		Payments: order.NewPaymentStarter(payforms),
	})
	return fixture{Fixture: f, orders: orders, resolver: resolver}
}

func items() []payabledomain.Item {
	return []payabledomain.Item{
		{Name: "Cake", Quantity: 2, Price: 500},
		{Name: "Candle", Quantity: 1, Price: 250},
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	result, err := f.orders.Create(context.Background(), f.Tenant, domain.CreateOrderRequest{Items: items(), ShippingCost: 100})
	require.NoError(t, err)
	assert.Nil(t, result.Payment)

	o := result.Order
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, "CUP", o.Currency)
	assert.Equal(t, int64(1250), o.Subtotal)
	assert.Equal(t, int64(1350), o.Total())
	assert.Contains(t, o.Code, "ORD-")

	stored, err := f.orders.Get(context.Background(), f.Tenant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Code, stored.Code)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Candle", stored.Items[1].Name)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.Create(ctx, f.Tenant, domain.CreateOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidItems)

	_, err = f.orders.Create(ctx, f.Tenant, domain.CreateOrderRequest{Items: []payabledomain.Item{{Name: "x", Quantity: 0, Price: 1}}})
	assert.ErrorIs(t, err, domain.ErrInvalidItems)

	_, err = f.orders.Create(ctx, f.Tenant, domain.CreateOrderRequest{Items: items(), Currency: "PESOS"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestCreateOrderStartsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := cash.Factory(f.Deps)(ctx, f.Tenant)
	require.NoError(t, err)
	f.Activate(t, cash.ID, []string{"CUP"}, nil)

	result, err := f.orders.Create(ctx, f.Tenant, domain.CreateOrderRequest{
		Code:      "ORD-100",
		Items:     items(),
		PayformID: cash.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Equal(t, payformdomain.ResponseNone, result.Payment.Type)
	assert.Equal(t, int64(1250), result.Payment.Transaction.Amount)
	assert.Equal(t, "ORD-100", result.Payment.Transaction.Reference)

	testutil.AssertCount(t, f.DB, "payment_transactions", 1, "payable_type = ? AND payable_id = ?", "order", result.Order.ID.String())
}

func TestCreateOrderPaymentFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)

	result, err := f.orders.Create(context.Background(), f.Tenant, domain.CreateOrderRequest{Items: items(), PayformID: cash.ID})
	assert.ErrorIs(t, err, payformdomain.ErrNotActive)
	require.NotNil(t, result)
	testutil.AssertCount(t, f.DB, "orders", 1, "id = ?", result.Order.ID)
}

func TestPayableTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.orders.Create(ctx, f.Tenant, domain.CreateOrderRequest{Items: items()})
	require.NoError(t, err)

	p, err := f.Deps.Payables.Resolve(ctx, f.Tenant, result.Order.Ref())
	require.NoError(t, err)
	orderable, ok := p.(payabledomain.Orderable)
	require.True(t, ok)
	assert.Equal(t, result.Order.Code, orderable.Code())
	assert.Len(t, orderable.Items(), 2)

	require.NoError(t, p.OnPaymentExpired(ctx))
	assert.Equal(t, domain.StatusPaymentExpired, p.Status())

	require.NoError(t, p.OnPaymentSuccess(ctx, "Paid"))
	assert.Equal(t, "paid", p.Status())

	// paid is terminal
	require.NoError(t, p.OnPaymentFailed(ctx))
	stored, err := f.orders.Get(ctx, f.Tenant, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", stored.Status)

	_, err = f.orders.UpdateStatus(ctx, f.Tenant, result.Order.ID, "cancelled")
	assert.ErrorIs(t, err, domain.ErrTerminal)
}

func TestResolverRejectsUnknownRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, f.Tenant, payabledomain.Ref{Type: "order", ID: "not-a-number"})
	assert.ErrorIs(t, err, payabledomain.ErrNotFound)
	_, err = f.resolver.Resolve(ctx, f.Tenant, payabledomain.Ref{Type: "order", ID: "12345"})
	assert.ErrorIs(t, err, payabledomain.ErrNotFound)
	_, err = f.resolver.Resolve(ctx, f.Tenant, payabledomain.Ref{Type: "invoice", ID: "1"})
	assert.ErrorIs(t, err, payabledomain.ErrUnsupported)
}

func TestSyncFromOrderStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := cash.Factory(f.Deps)(ctx, f.Tenant)
	require.NoError(t, err)
	f.Activate(t, cash.ID, []string{"CUP"}, nil)
	result, err := f.orders.Create(ctx, f.Tenant, domain.CreateOrderRequest{Items: items(), PayformID: cash.ID})
	require.NoError(t, err)

	updated, err := f.orders.UpdateStatus(ctx, f.Tenant, result.Order.ID, "completed")
	require.NoError(t, err)
	entry, err := f.Deps.Transactions.SyncFromPayableStatus(ctx, f.Tenant, updated.Ref(), updated.Status)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, txdomain.StatusApproved, entry.Status)
}
