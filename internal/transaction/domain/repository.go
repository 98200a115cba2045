package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"gorm.io/gorm"
)

type ListFilter struct {
	PayformID string
	// Before pages backwards from this (created_at, id) pair.
	BeforeCreatedAt *time.Time
	BeforeID        snowflake.ID
	Limit           int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	InsertStatus(ctx context.Context, db *gorm.DB, entry *StatusEntry) error
	BumpStatusVersion(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, expected *int64, now time.Time) (bool, error)

	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Transaction, error)
	FindByReference(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, reference string) (*Transaction, error)
	FindLatestForPayable(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ref payabledomain.Ref) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListFilter) ([]Transaction, error)

	LatestStatus(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*StatusEntry, error)
	ListStatuses(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]StatusEntry, error)

	SetExternalIDOnce(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, externalID string, now time.Time) (bool, error)
	SetExpiresAtOnce(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, expiresAt time.Time, now time.Time) (bool, error)

	ListExpiredPending(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, now time.Time, afterID snowflake.ID, limit int) ([]Transaction, error)
	TenantsWithExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
}
