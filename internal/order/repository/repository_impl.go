package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/order/domain"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	items := order.Items
	if items == nil {
		items = datatypes.JSONSlice[payabledomain.Item]{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, tenant_id, code, status, currency, subtotal, shipping_cost, items, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.TenantID,
		order.Code,
		order.Status,
		order.Currency,
		order.Subtotal,
		order.ShippingCost,
		items,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, status, currency, subtotal, shipping_cost, items, created_at, updated_at
		 FROM orders
		 WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, status string, locked []string, now time.Time) (bool, error) {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`
	args := []any{status, now, tenantID, id}
	if len(locked) > 0 {
		query += ` AND status NOT IN ?`
		args = append(args, locked)
	}
	result := db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
