// Package domain defines the narrow capability a payform needs from the thing being paid for.
package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

var (
	ErrNotFound    = errors.New("payable_not_found")
	ErrUnsupported = errors.New("payable_unsupported")
	ErrInvalidRef  = errors.New("invalid_payable_ref")
)

// Ref is an opaque handle to a payable: a type tag plus the owner's id.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r Ref) IsZero() bool {
	return strings.TrimSpace(r.Type) == "" && strings.TrimSpace(r.ID) == ""
}

func (r Ref) Validate() error {
	if strings.TrimSpace(r.Type) == "" || strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRef
	}
	return nil
}

func (r Ref) String() string {
	return r.Type + ":" + r.ID
}

// Payable receives payment lifecycle notifications.
type Payable interface {
	Ref() Ref
	// Status is the payable's own externally visible state.
	Status() string
	OnPaymentSuccess(ctx context.Context, status string) error
	OnPaymentFailed(ctx context.Context) error
	OnPaymentExpired(ctx context.Context) error
}

type Item struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
	// Price is the unit price in minor currency units.
	Price int64 `json:"price"`
}

// Orderable is implemented by payables that carry their own code and line items.
type Orderable interface {
	Payable
	Code() string
	ShippingCost() int64
	Items() []Item
}

// Resolver loads payables of one or more type tags.
type Resolver interface {
	Types() []string
	Resolve(ctx context.Context, tenant tenantctx.Tenant, ref Ref) (Payable, error)
}

// Lookup resolves any payable handle regardless of its type tag.
type Lookup interface {
	Resolve(ctx context.Context, tenant tenantctx.Tenant, ref Ref) (Payable, error)
}
