package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Order, error)
	// UpdateStatus writes status unless the current status is one of locked; it reports whether a row changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, status string, locked []string, now time.Time) (bool, error)
}
