// Package domain contains the order model used as the built-in payable.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"gorm.io/datatypes"
)

// PayableType is the type tag orders carry in payable references.
const PayableType = "order"

const (
	StatusPending        = "pending"
	StatusPaymentFailed  = "payment_failed"
	StatusPaymentExpired = "payment_expired"
)

type Order struct {
	ID           snowflake.ID                            `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID                            `gorm:"column:tenant_id;not null" json:"-"`
	Code         string                                  `gorm:"type:text;not null" json:"code"`
	Status       string                                  `gorm:"type:text;not null" json:"status"`
	Currency     string                                  `gorm:"type:text;not null" json:"currency"`
	Subtotal     int64                                   `gorm:"not null" json:"subtotal"`
	ShippingCost int64                                   `gorm:"column:shipping_cost;not null" json:"shipping_cost"`
	Items        datatypes.JSONSlice[payabledomain.Item] `gorm:"type:jsonb;not null" json:"items"`
	CreatedAt    time.Time                               `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time                               `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Total is the amount charged: subtotal plus shipping, in minor units.
func (o Order) Total() int64 { return o.Subtotal + o.ShippingCost }

func (o Order) Ref() payabledomain.Ref {
	return payabledomain.Ref{Type: PayableType, ID: o.ID.String()}
}

var (
	ErrNotFound        = errors.New("order_not_found")
	ErrInvalidItems    = errors.New("invalid_items")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrTerminal        = errors.New("order_already_final")
)
