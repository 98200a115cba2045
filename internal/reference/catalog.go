package reference

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/payforms/internal/cache"
	"github.com/smallbiznis/payforms/internal/reference/domain"
)

const catalogTTL = 10 * time.Minute

type catalog struct {
	repo  domain.Repository
	cache cache.Cache[string, []domain.Currency]
}

// NewCatalog serves the currency list from a short-lived cache.
func NewCatalog(repo domain.Repository) domain.Catalog {
	return &catalog{repo: repo, cache: cache.NewTTLCache[string, []domain.Currency]()}
}

func (c *catalog) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	if cached, ok := c.cache.Get("all"); ok {
		return append([]domain.Currency{}, cached...), nil
	}
	items, err := c.repo.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set("all", items, catalogTTL)
	return append([]domain.Currency{}, items...), nil
}

func (c *catalog) IsSupported(ctx context.Context, code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return false, nil
	}
	items, err := c.ListCurrencies(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.Code == code {
			return true, nil
		}
	}
	return false, nil
}
