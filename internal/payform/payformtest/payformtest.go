// Package payformtest builds payform dependencies over an in-memory database.
package payformtest

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/repository"
	"github.com/smallbiznis/payforms/internal/testutil"
	txrepository "github.com/smallbiznis/payforms/internal/transaction/repository"
	txservice "github.com/smallbiznis/payforms/internal/transaction/service"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Now is the fixed instant fixtures start at.
var Now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type Fixture struct {
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  *clock.FakeClock
	Deps   base.Deps
	Tenant tenantctx.Tenant
}

type Option func(*base.Deps)

func WithSandbox() Option {
	return func(d *base.Deps) { d.Sandbox = true }
}

func WithPayables(lookup payabledomain.Lookup) Option {
	return func(d *base.Deps) { d.Payables = lookup }
}

// New returns deps wired to a fresh database and a CUP tenant holding every feature.
func New(t testing.TB, opts ...Option) *Fixture {
	t.Helper()
	db := testutil.SetupDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(Now)
	settings := config.NewStaticSettingsHolder(config.DefaultPayformsSettings())

	deps := base.Deps{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Repo:            repository.Provide(),
		Settings:        settings,
		Clock:           clk,
		HTTPClient:      &http.Client{Timeout: 5 * time.Second},
		CallbackBaseURL: "https://shop.test",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	deps.Transactions = txservice.New(txservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     txrepository.Provide(),
		Clock:    clk,
		Settings: settings,
		Payables: deps.Payables,
	})

	tenantID := testutil.SeedTenant(t, db, node, "CUP")
	return &Fixture{
		DB:    db,
		Node:  node,
		Clock: clk,
		Deps:  deps,
		Tenant: tenantctx.Tenant{
			ID:           tenantID,
			BaseCurrency: "CUP",
			Features:     AllFeatures{},
		},
	}
}

// AllFeatures grants every feature code.
type AllFeatures struct{}

func (AllFeatures) HasFeature(string) bool { return true }

// Activate marks a payform active for the given currencies and merges args into its definition.
func (f *Fixture) Activate(t testing.TB, payformID string, currencies []string, args map[string]any) {
	t.Helper()
	ctx := context.Background()
	def, err := f.Deps.Repo.Find(ctx, f.DB, f.Tenant.ID, payformID)
	if err != nil || def == nil {
		t.Fatalf("find payform %s: %v", payformID, err)
	}
	merged := map[string]any{}
	for k, v := range def.Args {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}
	err = f.DB.Exec(
		`UPDATE payforms_data SET active = ?, currencies = ?, args = ? WHERE tenant_id = ? AND payform_id = ?`,
		true, jsonString(t, currencies), jsonString(t, merged), f.Tenant.ID, payformID,
	).Error
	if err != nil {
		t.Fatalf("activate payform %s: %v", payformID, err)
	}
}

// Payable is an in-memory payable that records the notifications it receives.
type Payable struct {
	ID        string
	Reference string
	State     string
	Successes []string
	Failures  int
	Expiries  int
	Lines     []payabledomain.Item
	Shipping  int64
}

func (p *Payable) Ref() payabledomain.Ref { return payabledomain.Ref{Type: "order", ID: p.ID} }

func (p *Payable) Status() string { return p.State }

func (p *Payable) OnPaymentSuccess(_ context.Context, status string) error {
	p.Successes = append(p.Successes, status)
	p.State = status
	return nil
}

func (p *Payable) OnPaymentFailed(context.Context) error {
	p.Failures++
	return nil
}

func (p *Payable) OnPaymentExpired(context.Context) error {
	p.Expiries++
	return nil
}

func (p *Payable) Code() string { return p.Reference }

func (p *Payable) ShippingCost() int64 { return p.Shipping }

func (p *Payable) Items() []payabledomain.Item { return p.Lines }

// Lookup resolves the payables it holds by id.
type Lookup map[string]*Payable

func (l Lookup) Resolve(_ context.Context, _ tenantctx.Tenant, ref payabledomain.Ref) (payabledomain.Payable, error) {
	p, ok := l[ref.ID]
	if !ok || ref.Type != "order" {
		return nil, payabledomain.ErrNotFound
	}
	return p, nil
}

func jsonString(t testing.TB, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}
