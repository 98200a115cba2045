package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound            = errors.New("payform_not_found")
	ErrAlreadyRegistered   = errors.New("payform_already_registered")
	ErrNotActive           = errors.New("payform_not_active")
	ErrNotConfigured       = errors.New("payform_not_configured")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrUpstreamAuth        = errors.New("upstream_auth_failed")
	ErrRequestFailed       = errors.New("gateway_request_failed")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrMissingReference    = errors.New("missing_reference")
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidDefinition   = errors.New("invalid_definition")
)

// TransactionCreationError hides the gateway cause from callers while keeping it inspectable.
type TransactionCreationError struct {
	PayformID string
	Cause     error
}

func (e *TransactionCreationError) Error() string {
	return "transaction_creation_failed"
}

func (e *TransactionCreationError) Unwrap() error {
	return e.Cause
}

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ArgsValidationError lists the payform arguments that fail their schema.
type ArgsValidationError struct {
	Fields []FieldError
}

func (e *ArgsValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid_args"
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "invalid_args: " + strings.Join(names, ", ")
}

func (e *ArgsValidationError) Is(target error) bool {
	return target == ErrNotConfigured
}
