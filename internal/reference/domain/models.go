package domain

import (
	"context"
	"errors"
	"time"
)

type Currency struct {
	Code      string    `json:"code" gorm:"type:char(3);primaryKey;column:code"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Symbol    *string   `json:"symbol,omitempty" gorm:"type:text"`
	MinorUnit int16     `json:"minor_unit" gorm:"type:smallint;not null"`
	IsActive  bool      `json:"is_active,omitempty" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Currency) TableName() string { return "currencies" }

var ErrUnknownCurrency = errors.New("unknown_currency")

// Catalog answers questions about the supported currency set.
type Catalog interface {
	ListCurrencies(ctx context.Context) ([]Currency, error)
	IsSupported(ctx context.Context, code string) (bool, error)
}
