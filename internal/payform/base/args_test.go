package base

import (
	"testing"

	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/stretchr/testify/assert"
)

func TestEffectiveArgs(t *testing.T) {
	args := map[string]any{
		"url":                "live",
		"url_sandbox":        "sandbox",
		"token":              "live-token",
		domain.SandboxToggle: true,
	}

	assert.Equal(t, args, EffectiveArgs(args, false))
	assert.Equal(t, map[string]any{
		"url":                "sandbox",
		domain.SandboxToggle: true,
	}, EffectiveArgs(args, true))
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, "1", "yes", 1, int64(2), 1.0} {
		assert.True(t, truthy(v), "%v", v)
	}
	for _, v := range []any{nil, false, "", "0", "false", "FALSE", 0, 0.0} {
		assert.False(t, truthy(v), "%v", v)
	}
}

func TestDecodeArgsIsWeaklyTyped(t *testing.T) {
	type numericArgs struct {
		ClientID string `mapstructure:"clientID" validate:"required,numeric"`
	}
	var out numericArgs
	assert.NoError(t, DecodeArgs(map[string]any{"clientID": float64(1234)}, &out))
	assert.Equal(t, "1234", out.ClientID)

	err := DecodeArgs(map[string]any{"clientID": "abc"}, &numericArgs{})
	var argsErr *domain.ArgsValidationError
	if assert.ErrorAs(t, err, &argsErr) {
		assert.Equal(t, "clientID", argsErr.Fields[0].Field)
		assert.Equal(t, "clientID must be numeric", argsErr.Fields[0].Message)
	}
}
