package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	orderdomain "github.com/smallbiznis/payforms/internal/order/domain"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	payformdomain "github.com/smallbiznis/payforms/internal/payform/domain"
	tenantdomain "github.com/smallbiznis/payforms/internal/tenant/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/smallbiznis/payforms/pkg/db"
	"github.com/smallbiznis/payforms/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrTenantRequired = errors.New("tenant_required")
)

// validationSentinels map to 400 with the sentinel text as code.
var validationSentinels = []error{
	ErrInvalidRequest,
	ErrTenantRequired,
	payformdomain.ErrInvalidCurrency,
	payformdomain.ErrUnsupportedCurrency,
	payformdomain.ErrInvalidPayload,
	payformdomain.ErrMissingReference,
	payformdomain.ErrInvalidDefinition,
	txdomain.ErrInvalidStatus,
	txdomain.ErrInvalidAmount,
	txdomain.ErrInvalidCurrency,
	txdomain.ErrInvalidPayform,
	txdomain.ErrInvalidPageToken,
	txdomain.ErrInvalidTenant,
	orderdomain.ErrInvalidItems,
	orderdomain.ErrInvalidCurrency,
	orderdomain.ErrInvalidStatus,
	tenantdomain.ErrInvalidName,
	tenantdomain.ErrInvalidCurrency,
	tenantdomain.ErrInvalidTenant,
	featuredomain.ErrInvalidCode,
	featuredomain.ErrInvalidTenant,
	payabledomain.ErrInvalidRef,
	payabledomain.ErrUnsupported,
	pagination.ErrInvalidCursor,
}

var notFoundSentinels = []error{
	ErrNotFound,
	payformdomain.ErrNotFound,
	txdomain.ErrNotFound,
	orderdomain.ErrNotFound,
	tenantdomain.ErrNotFound,
	payabledomain.ErrNotFound,
	gorm.ErrRecordNotFound,
}

var conflictSentinels = []error{
	ErrConflict,
	txdomain.ErrInvalidTransition,
	txdomain.ErrDuplicateReference,
	txdomain.ErrAlreadySet,
	orderdomain.ErrTerminal,
	featuredomain.ErrBasicFeature,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var argsErr *payformdomain.ArgsValidationError
	if errors.As(err, &argsErr) && argsErr != nil {
		fields := make([]ValidationError, 0, len(argsErr.Fields))
		for _, f := range argsErr.Fields {
			fields = append(fields, ValidationError{Field: "args." + f.Field, Code: f.Rule, Message: f.Message})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "invalid payform arguments",
			Errors:  fields,
		}
	}

	if sentinel := matchSentinel(err, validationSentinels); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var creationErr *payformdomain.TransactionCreationError
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, payformdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case matchSentinel(err, notFoundSentinels) != nil:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, payformdomain.ErrNotActive),
		errors.Is(err, payformdomain.ErrNotConfigured):
		return http.StatusConflict, errorPayload{
			Type:    "payform_unavailable",
			Message: "payment method unavailable",
		}
	case matchSentinel(err, conflictSentinels) != nil,
		db.IsDuplicateKeyErr(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.As(err, &creationErr),
		errors.Is(err, payformdomain.ErrUpstreamAuth),
		errors.Is(err, payformdomain.ErrRequestFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog keeps the request log aligned with the response body.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchSentinel(err error, sentinels []error) error {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "tenant_required":
		return "tenant"
	case "unsupported_currency":
		return "currency"
	case "missing_reference":
		return "reference"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "tenant_required":
		return "tenant is required"
	default:
		return "invalid value"
	}
}
