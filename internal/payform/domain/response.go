package domain

import (
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
)

type ResponseType string

const (
	ResponseNone      ResponseType = "none"
	ResponseRedirect  ResponseType = "redirect"
	ResponseQR        ResponseType = "qr"
	ResponseForm      ResponseType = "form"
	ResponseComponent ResponseType = "component"
	ResponseInfo      ResponseType = "info"
)

// TransactionSnapshot is the transaction view embedded in a PaymentResponse.
type TransactionSnapshot struct {
	ID        string          `json:"id"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Status    txdomain.Status `json:"status"`
}

func SnapshotOf(tx *txdomain.Transaction, status txdomain.Status) TransactionSnapshot {
	if tx == nil {
		return TransactionSnapshot{Status: status}
	}
	return TransactionSnapshot{
		ID:        tx.ID.String(),
		Reference: tx.Reference,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Status:    status,
	}
}

// PaymentResponse tells the caller how to continue a payment. Values are never persisted.
type PaymentResponse struct {
	Transaction TransactionSnapshot `json:"transaction"`
	Type        ResponseType        `json:"type"`
	Data        map[string]any      `json:"data"`
	Message     *string             `json:"message"`
}

func newResponse(tx TransactionSnapshot, typ ResponseType, data map[string]any, message string, extra map[string]any) *PaymentResponse {
	merged := make(map[string]any, len(data)+len(extra))
	for k, v := range extra {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	resp := &PaymentResponse{Transaction: tx, Type: typ, Data: merged}
	if message != "" {
		resp.Message = &message
	}
	return resp
}

func None(tx TransactionSnapshot, message string) *PaymentResponse {
	return newResponse(tx, ResponseNone, nil, message, nil)
}

func Redirect(tx TransactionSnapshot, url, message string, extra map[string]any) *PaymentResponse {
	return newResponse(tx, ResponseRedirect, map[string]any{"url": url}, message, extra)
}

func QR(tx TransactionSnapshot, content, message string, extra map[string]any) *PaymentResponse {
	return newResponse(tx, ResponseQR, map[string]any{"content": content}, message, extra)
}

func Form(tx TransactionSnapshot, fields any, message string, extra map[string]any) *PaymentResponse {
	if fields == nil {
		fields = []any{}
	}
	return newResponse(tx, ResponseForm, map[string]any{"fields": fields}, message, extra)
}

func Component(tx TransactionSnapshot, component string, props any, message string, extra map[string]any) *PaymentResponse {
	if props == nil {
		props = map[string]any{}
	}
	return newResponse(tx, ResponseComponent, map[string]any{
		"component": component,
		"props":     props,
	}, message, extra)
}

func Info(tx TransactionSnapshot, instructions, email, message string, extra map[string]any) *PaymentResponse {
	return newResponse(tx, ResponseInfo, map[string]any{
		"instructions": instructions,
		"email":        email,
	}, message, extra)
}
