package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

type Service interface {
	Gate(ctx context.Context, tenantID snowflake.ID) (tenantctx.FeatureGate, error)
	List(ctx context.Context, tenantID snowflake.ID) ([]string, error)
	Grant(ctx context.Context, tenantID snowflake.ID, code string) error
	Revoke(ctx context.Context, tenantID snowflake.ID, code string) error
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidCode   = errors.New("invalid_feature_code")
	ErrBasicFeature  = errors.New("basic_feature_cannot_be_revoked")
)
