package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusInProcess Status = "in_process"
	StatusOnHold    Status = "on_hold"
	StatusRefunded  Status = "refunded"
	StatusCanceled  Status = "canceled"
	StatusManual    Status = "manual"
)

var allStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusInProcess,
	StatusOnHold,
	StatusRefunded,
	StatusCanceled,
	StatusManual,
}

func ParseStatus(value string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, nil
		}
	}
	return "", ErrInvalidStatus
}

// Status entry sources recorded in entry metadata.
const (
	SourceCreate     = "create"
	SourceWebhook    = "webhook"
	SourceManual     = "manual"
	SourcePayable    = "payable_sync"
	SourceReconciler = "reconciler"
)

type Transaction struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID      `gorm:"column:tenant_id;not null" json:"tenant_id"`
	PayformID     string            `gorm:"column:payform_id;type:text;not null" json:"payform_id"`
	Reference     string            `gorm:"type:text;not null" json:"reference"`
	ExternalID    *string           `gorm:"column:external_id;type:text" json:"external_id,omitempty"`
	Amount        int64             `gorm:"not null" json:"amount"`
	Currency      string            `gorm:"type:text;not null" json:"currency"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	PayableType   *string           `gorm:"column:payable_type;type:text" json:"payable_type,omitempty"`
	PayableID     *string           `gorm:"column:payable_id;type:text" json:"payable_id,omitempty"`
	ExpiresAt     *time.Time        `gorm:"column:expires_at" json:"expires_at,omitempty"`
	StatusVersion int64             `gorm:"column:status_version;not null" json:"-"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "payment_transactions" }

// PayableRef returns the polymorphic payable handle, if any.
func (t Transaction) PayableRef() (payabledomain.Ref, bool) {
	if t.PayableType == nil || t.PayableID == nil {
		return payabledomain.Ref{}, false
	}
	ref := payabledomain.Ref{Type: *t.PayableType, ID: *t.PayableID}
	if ref.Validate() != nil {
		return payabledomain.Ref{}, false
	}
	return ref, true
}

// StatusEntry is one append-only row of a transaction's status history.
type StatusEntry struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID      `gorm:"column:tenant_id;not null" json:"-"`
	TransactionID snowflake.ID      `gorm:"column:transaction_id;not null" json:"transaction_id"`
	Status        Status            `gorm:"type:text;not null" json:"status"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
}

func (StatusEntry) TableName() string { return "payment_transaction_statuses" }
