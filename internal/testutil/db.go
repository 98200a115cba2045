// Package testutil holds in-memory SQLite fixtures shared by repository and service tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Schema mirrors the Postgres migrations using SQLite-compatible types.
var Schema = []string{
	`CREATE TABLE currencies (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		symbol TEXT,
		minor_unit INTEGER NOT NULL DEFAULT 2,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`INSERT INTO currencies (code, name, symbol, minor_unit) VALUES
		('CUP', 'Cuban Peso', '$', 2),
		('MLC', 'Moneda Libremente Convertible', '$', 2),
		('USD', 'US Dollar', '$', 2),
		('EUR', 'Euro', '€', 2)`,
	`CREATE TABLE tenants (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		base_currency TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_tenants_slug ON tenants(slug)`,
	`CREATE TABLE tenant_features (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		code TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_tenant_features_code ON tenant_features(tenant_id, code)`,
	`CREATE TABLE payforms_data (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		payform_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT FALSE,
		currencies TEXT NOT NULL DEFAULT '[]',
		expiration_hours INTEGER,
		args TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payforms_data_payform ON payforms_data(tenant_id, payform_id)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		code TEXT NOT NULL,
		status TEXT NOT NULL,
		currency TEXT NOT NULL,
		subtotal BIGINT NOT NULL DEFAULT 0,
		shipping_cost BIGINT NOT NULL DEFAULT 0,
		items TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_orders_code ON orders(tenant_id, code)`,
	`CREATE TABLE payment_transactions (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		payform_id TEXT NOT NULL,
		reference TEXT NOT NULL,
		external_id TEXT,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		payable_type TEXT,
		payable_id TEXT,
		expires_at DATETIME,
		status_version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payment_transactions_reference ON payment_transactions(tenant_id, reference)`,
	`CREATE TABLE payment_transaction_statuses (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		transaction_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
}

// SetupDB opens a private in-memory database with the full payforms schema.
func SetupDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake generator for tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// SeedTenant inserts a tenant row and returns its id.
func SeedTenant(t testing.TB, db *gorm.DB, node *snowflake.Node, baseCurrency string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO tenants (id, name, slug, base_currency, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, "Tenant "+id.String(), "tenant-"+id.String(), baseCurrency, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return id
}

// AssertCount fails the test when the row count of a filtered table differs from want.
func AssertCount(t testing.TB, db *gorm.DB, table string, want int64, where string, args ...any) {
	t.Helper()
	var got int64
	query := db.Table(table)
	if where != "" {
		query = query.Where(where, args...)
	}
	if err := query.Count(&got).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if got != want {
		t.Fatalf("expected %d rows in %s, got %d", want, table, got)
	}
}
