package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/transaction/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const transactionColumns = `id, tenant_id, payform_id, reference, external_id, amount, currency, metadata,
	payable_type, payable_id, expires_at, status_version, created_at, updated_at`

// latestStatusSQL selects the current status of the outer row aliased t.
const latestStatusSQL = `(SELECT s.status FROM payment_transaction_statuses s
	WHERE s.transaction_id = t.id
	ORDER BY s.created_at DESC, s.id DESC
	LIMIT 1)`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	if tx == nil {
		return gorm.ErrInvalidData
	}
	metadata := tx.Metadata
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.TenantID,
		tx.PayformID,
		tx.Reference,
		tx.ExternalID,
		tx.Amount,
		tx.Currency,
		metadata,
		tx.PayableType,
		tx.PayableID,
		tx.ExpiresAt,
		tx.StatusVersion,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *repo) InsertStatus(ctx context.Context, db *gorm.DB, entry *domain.StatusEntry) error {
	if entry == nil {
		return gorm.ErrInvalidData
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transaction_statuses (id, tenant_id, transaction_id, status, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.TransactionID,
		entry.Status,
		metadata,
		entry.CreatedAt,
	).Error
}

// BumpStatusVersion increments the version; with expected set it only succeeds if the version still matches.
func (r *repo) BumpStatusVersion(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, expected *int64, now time.Time) (bool, error) {
	query := `UPDATE payment_transactions
		 SET status_version = status_version + 1, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`
	args := []any{now, tenantID, id}
	if expected != nil {
		query += ` AND status_version = ?`
		args = append(args, *expected)
	}
	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Transaction, error) {
	return r.findOne(ctx, db, `tenant_id = ? AND id = ?`, tenantID, id)
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, reference string) (*domain.Transaction, error) {
	return r.findOne(ctx, db, `tenant_id = ? AND reference = ?`, tenantID, strings.TrimSpace(reference))
}

func (r *repo) FindLatestForPayable(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ref payabledomain.Ref) (*domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM payment_transactions
		 WHERE tenant_id = ? AND payable_type = ? AND payable_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		tenantID,
		ref.Type,
		ref.ID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListFilter) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE tenant_id = ?`
	args := []any{tenantID}
	if payformID := strings.TrimSpace(filter.PayformID); payformID != "" {
		query += ` AND payform_id = ?`
		args = append(args, payformID)
	}
	if filter.BeforeCreatedAt != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, *filter.BeforeCreatedAt, *filter.BeforeCreatedAt, filter.BeforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var items []domain.Transaction
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LatestStatus(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*domain.StatusEntry, error) {
	var entries []domain.StatusEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, transaction_id, status, metadata, created_at
		 FROM payment_transaction_statuses
		 WHERE transaction_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		transactionID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *repo) ListStatuses(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.StatusEntry, error) {
	var entries []domain.StatusEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, transaction_id, status, metadata, created_at
		 FROM payment_transaction_statuses
		 WHERE transaction_id = ?
		 ORDER BY created_at ASC, id ASC`,
		transactionID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SetExternalIDOnce(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, externalID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET external_id = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND external_id IS NULL`,
		externalID,
		now,
		tenantID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetExpiresAtOnce(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, expiresAt time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET expires_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND expires_at IS NULL`,
		expiresAt,
		now,
		tenantID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpiredPending pages by id through transactions past expiry whose latest status is PENDING.
func (r *repo) ListExpiredPending(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, now time.Time, afterID snowflake.ID, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT t.id, t.tenant_id, t.payform_id, t.reference, t.external_id, t.amount, t.currency, t.metadata,
		        t.payable_type, t.payable_id, t.expires_at, t.status_version, t.created_at, t.updated_at
		 FROM payment_transactions t
		 WHERE t.tenant_id = ?
		   AND t.payable_type IS NOT NULL
		   AND t.payable_id IS NOT NULL
		   AND t.expires_at IS NOT NULL
		   AND t.expires_at < ?
		   AND t.id > ?
		   AND `+latestStatusSQL+` = ?
		 ORDER BY t.id ASC
		 LIMIT ?`,
		tenantID,
		now,
		afterID,
		domain.StatusPending,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) TenantsWithExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT t.tenant_id
		 FROM payment_transactions t
		 WHERE t.payable_type IS NOT NULL
		   AND t.payable_id IS NOT NULL
		   AND t.expires_at IS NOT NULL
		   AND t.expires_at < ?
		   AND `+latestStatusSQL+` = ?
		 ORDER BY t.tenant_id`,
		now,
		domain.StatusPending,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
