package reference_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/payforms/internal/reference"
	"github.com/smallbiznis/payforms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsSupported(t *testing.T) {
	db := testutil.SetupDB(t)
	catalog := reference.NewCatalog(reference.NewRepository(db))
	ctx := context.Background()

	for code, want := range map[string]bool{"cup": true, " MLC ": true, "XYZ": false, "US": false, "": false} {
		got, err := catalog.IsSupported(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, want, got, code)
	}

	require.NoError(t, db.Exec(`DELETE FROM currencies`).Error)
	items, err := catalog.ListCurrencies(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 4, "served from cache")
}
