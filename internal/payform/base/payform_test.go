package base_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	pfdomain "github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/payformtest"
	"github.com/smallbiznis/payforms/internal/testutil"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testArgs struct {
	URL    string `mapstructure:"url" validate:"required,url"`
	Secret string `mapstructure:"secret" validate:"required"`
}

var testDescriptor = base.Descriptor{
	ID:      "test-form",
	Name:    "Test",
	NewArgs: func() any { return &testArgs{} },
}

type stubHandler struct {
	deps         base.Deps
	createErr    error
	seenStatus   txdomain.Status
	commitEntry  func(ctx context.Context) (*txdomain.StatusEntry, error)
	createCalled int
}

func (h *stubHandler) HandleCreateTransaction(ctx context.Context, tx *txdomain.Transaction, _ domain.Payable, _ pfdomain.CreateTransactionRequest) (*pfdomain.PaymentResponse, error) {
	h.createCalled++
	status, err := h.deps.Transactions.CurrentStatus(ctx, tx.TenantID, tx.ID)
	if err != nil {
		return nil, err
	}
	h.seenStatus = status
	if h.createErr != nil {
		return nil, h.createErr
	}
	return pfdomain.Redirect(pfdomain.SnapshotOf(tx, status), "https://gateway.test/pay", "", nil), nil
}

func (h *stubHandler) HandleCommitPayment(ctx context.Context, _ pfdomain.CommitRequest) (*txdomain.StatusEntry, error) {
	if h.commitEntry == nil {
		return nil, nil
	}
	return h.commitEntry(ctx)
}

func load(t *testing.T, f *payformtest.Fixture, h *stubHandler) *base.PayForm {
	t.Helper()
	h.deps = f.Deps
	form, err := base.Load(context.Background(), f.Deps, f.Tenant, testDescriptor, h)
	require.NoError(t, err)
	return form
}

func TestLoadCreatesInactiveDefinitionOnce(t *testing.T) {
	f := payformtest.New(t)

	first := load(t, f, &stubHandler{})
	assert.False(t, first.Active())
	assert.Equal(t, "Test", first.Summary().Name)
	require.NotNil(t, first.ExpirationHours())
	assert.Equal(t, 12, *first.ExpirationHours())
	assert.Empty(t, first.Currencies())

	second := load(t, f, &stubHandler{})
	assert.Equal(t, first.Definition().ID, second.Definition().ID)
	testutil.AssertCount(t, f.DB, "payforms_data", 1, "tenant_id = ? AND payform_id = ?", f.Tenant.ID, testDescriptor.ID)
}

func TestConfiguredFollowsArgsSchema(t *testing.T) {
	f := payformtest.New(t)
	ctx := context.Background()
	form := load(t, f, &stubHandler{})

	assert.False(t, form.Configured())

	err := form.ValidateArgs(map[string]any{"url": "not a url"})
	var argsErr *pfdomain.ArgsValidationError
	require.ErrorAs(t, err, &argsErr)
	assert.ErrorIs(t, err, pfdomain.ErrNotConfigured)
	fields := map[string]string{}
	for _, fe := range argsErr.Fields {
		fields[fe.Field] = fe.Rule
	}
	assert.Equal(t, map[string]string{"url": "url", "secret": "required"}, fields)

	require.NoError(t, form.SetArg(ctx, "url", "https://hub.test"))
	require.NoError(t, form.SetArg(ctx, "secret", "s3cret"))
	assert.True(t, form.Configured())

	reloaded := load(t, f, &stubHandler{})
	assert.True(t, reloaded.Configured())
	assert.Equal(t, "https://hub.test", reloaded.GetArg("url"))

	rules := form.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, pfdomain.ArgRule{Key: "url", Rules: "required,url"}, rules[0])
}

func TestSetArgNilRemovesKey(t *testing.T) {
	f := payformtest.New(t)
	ctx := context.Background()
	form := load(t, f, &stubHandler{})

	require.NoError(t, form.SetArg(ctx, "secret", "x"))
	require.NoError(t, form.SetArg(ctx, "secret", nil))
	assert.Nil(t, form.GetArg("secret"))
	_, present := load(t, f, &stubHandler{}).Definition().Args["secret"]
	assert.False(t, present)
}

func TestSetArgKeepsArgsWrittenSinceLoad(t *testing.T) {
	f := payformtest.New(t)
	ctx := context.Background()

	stale := load(t, f, &stubHandler{})
	require.NoError(t, stale.SetArg(ctx, "secret", "old"))

	admin := load(t, f, &stubHandler{})
	require.NoError(t, admin.SetArg(ctx, "secret", "rotated"))
	require.NoError(t, admin.SetArg(ctx, "url", "https://hub.test"))

	require.NoError(t, stale.SetArg(ctx, "token", "t-1"))

	stored := load(t, f, &stubHandler{}).Definition().Args
	assert.Equal(t, "rotated", stored["secret"])
	assert.Equal(t, "https://hub.test", stored["url"])
	assert.Equal(t, "t-1", stored["token"])
	assert.Equal(t, "rotated", stale.GetArg("secret"))
}

func TestSandboxShadowsArgs(t *testing.T) {
	f := payformtest.New(t, payformtest.WithSandbox())
	ctx := context.Background()
	form := load(t, f, &stubHandler{})

	require.NoError(t, form.SetArg(ctx, "url", "https://live.test"))
	require.NoError(t, form.SetArg(ctx, "secret", "live"))
	assert.True(t, form.Configured())

	require.NoError(t, form.SetArg(ctx, pfdomain.SandboxToggle, true))
	assert.Nil(t, form.GetArg("url"))
	assert.False(t, form.Configured())

	require.NoError(t, form.SetArg(ctx, "url", "https://sandbox.test"))
	require.NoError(t, form.SetArg(ctx, "secret", "sandbox"))
	assert.Equal(t, "https://sandbox.test", form.GetArg("url"))
	assert.True(t, form.Configured())

	args := form.Definition().Args
	assert.Equal(t, "https://live.test", args["url"])
	assert.Equal(t, "https://sandbox.test", args["url"+pfdomain.SandboxSuffix])
	assert.Equal(t, "live", args["secret"])
	assert.Equal(t, true, args[pfdomain.SandboxToggle])

	var decoded testArgs
	require.NoError(t, form.Args(&decoded))
	assert.Equal(t, "sandbox", decoded.Secret)
}

func TestSandboxToggleIgnoredOutsideSandboxProcess(t *testing.T) {
	f := payformtest.New(t)
	ctx := context.Background()
	form := load(t, f, &stubHandler{})

	require.NoError(t, form.SetArg(ctx, pfdomain.SandboxToggle, true))
	require.NoError(t, form.SetArg(ctx, "url", "https://live.test"))
	assert.Equal(t, "https://live.test", form.GetArg("url"))
	_, shadowed := form.Definition().Args["url"+pfdomain.SandboxSuffix]
	assert.False(t, shadowed)
}

func TestCreateTransactionIsPendingBeforeGateway(t *testing.T) {
	f := payformtest.New(t)
	h := &stubHandler{}
	form := load(t, f, h)

	resp, err := form.CreateTransaction(context.Background(), pfdomain.CreateTransactionRequest{Amount: 1500, Currency: "cup"})
	require.NoError(t, err)

	assert.Equal(t, 1, h.createCalled)
	assert.Equal(t, txdomain.StatusPending, h.seenStatus)
	assert.Equal(t, pfdomain.ResponseRedirect, resp.Type)
	assert.Equal(t, "https://gateway.test/pay", resp.Data["url"])
	assert.Equal(t, int64(1500), resp.Transaction.Amount)
	assert.Equal(t, "CUP", resp.Transaction.Currency)

	testutil.AssertCount(t, f.DB, "payment_transactions", 1, "payform_id = ?", testDescriptor.ID)
	tx, err := f.Deps.Transactions.FindByReference(context.Background(), f.Tenant.ID, resp.Transaction.Reference)
	require.NoError(t, err)
	require.NotNil(t, tx.ExpiresAt)
	assert.WithinDuration(t, payformtest.Now.Add(12*time.Hour), *tx.ExpiresAt, time.Second)
}

func TestCreateTransactionUsesOrderCodeAsReference(t *testing.T) {
	order := &payformtest.Payable{ID: "42", Reference: "ORD-42", State: "pending"}
	f := payformtest.New(t, payformtest.WithPayables(payformtest.Lookup{"42": order}))
	form := load(t, f, &stubHandler{})

	resp, err := form.CreateTransaction(context.Background(), pfdomain.CreateTransactionRequest{
		Amount:   100,
		Currency: "CUP",
		Payable:  &domain.Ref{Type: "order", ID: "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-42", resp.Transaction.Reference)
}

func TestCreateTransactionGatewayTimeoutKeepsPending(t *testing.T) {
	f := payformtest.New(t)
	form := load(t, f, &stubHandler{createErr: context.DeadlineExceeded})

	resp, err := form.CreateTransaction(context.Background(), pfdomain.CreateTransactionRequest{Amount: 100, Currency: "CUP"})
	require.NoError(t, err)
	assert.Equal(t, pfdomain.ResponseNone, resp.Type)
	require.NotNil(t, resp.Message)
	assert.Contains(t, *resp.Message, "remains pending")
	assert.Equal(t, txdomain.StatusPending, resp.Transaction.Status)
}

func TestCreateTransactionGatewayFailure(t *testing.T) {
	f := payformtest.New(t)
	cause := errors.New("gateway exploded")
	form := load(t, f, &stubHandler{createErr: cause})

	resp, err := form.CreateTransaction(context.Background(), pfdomain.CreateTransactionRequest{Amount: 100, Currency: "CUP"})
	require.Error(t, err)
	assert.Nil(t, resp)

	var creationErr *pfdomain.TransactionCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.Equal(t, testDescriptor.ID, creationErr.PayformID)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transaction_creation_failed", err.Error())

	// the pending row stays for the reconciler
	testutil.AssertCount(t, f.DB, "payment_transactions", 1, "payform_id = ?", testDescriptor.ID)
}

func TestCommitPaymentNotifiesPayableOnApproval(t *testing.T) {
	order := &payformtest.Payable{ID: "7", Reference: "ORD-7", State: "pending"}
	f := payformtest.New(t, payformtest.WithPayables(payformtest.Lookup{"7": order}))
	ctx := context.Background()
	h := &stubHandler{}
	form := load(t, f, h)

	resp, err := form.CreateTransaction(ctx, pfdomain.CreateTransactionRequest{
		Amount:   100,
		Currency: "CUP",
		Payable:  &domain.Ref{Type: "order", ID: "7"},
	})
	require.NoError(t, err)
	tx, err := f.Deps.Transactions.FindByReference(ctx, f.Tenant.ID, resp.Transaction.Reference)
	require.NoError(t, err)

	h.commitEntry = func(ctx context.Context) (*txdomain.StatusEntry, error) {
		return f.Deps.Transactions.Pay(ctx, f.Tenant.ID, tx.ID, map[string]any{"source": txdomain.SourceWebhook})
	}
	entry, err := form.CommitPayment(ctx, pfdomain.CommitRequest{})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, txdomain.StatusApproved, entry.Status)
	assert.Equal(t, []string{"paid"}, order.Successes)
}

func TestCommitPaymentIgnoredEntry(t *testing.T) {
	f := payformtest.New(t)
	form := load(t, f, &stubHandler{})

	entry, err := form.CommitPayment(context.Background(), pfdomain.CommitRequest{})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCallbackURLCarriesTenant(t *testing.T) {
	f := payformtest.New(t)
	form := load(t, f, &stubHandler{})
	assert.Equal(t, "https://shop.test/api/payforms/test-form/commit?tenant="+f.Tenant.ID.String(), form.CallbackURL())
}
