// internal/services/product_service_test.go
package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/utils"
)

func paginationParams(filter, search string) utils.PaginationParams {
	return utils.PaginationParams{
		Page:   1,
		Limit:  20,
		Sort:   "created_at",
		Order:  "desc",
		Search: search,
		Filter: filter,
	}
}

func newTestProductService(t *testing.T) (*ProductService, sqlmock.Sqlmock) {
	t.Helper()

	gdb, mock := newMockDB(t)
	cfg := &config.Config{}
	return NewProductService(gdb, &StorageService{config: cfg}, cfg), mock
}

func TestRemoveProduct_ArchivesWhenSold(t *testing.T) {
	svc, mock := newTestProductService(t)

	ownerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, ownerID, 150000, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	// Sold products are archived so past buyers keep their downloads.
	mock.ExpectExec(`UPDATE "products"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	archived, err := svc.RemoveProduct(ownerID, productID)
	require.NoError(t, err)

	assert.True(t, archived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveProduct_DeletesWhenUnsold(t *testing.T) {
	svc, mock := newTestProductService(t)

	ownerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, ownerID, 150000, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	// Soft delete sets deleted_at.
	mock.ExpectExec(`UPDATE "products"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	archived, err := svc.RemoveProduct(ownerID, productID)
	require.NoError(t, err)

	assert.False(t, archived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveProduct_NotOwner(t *testing.T) {
	svc, mock := newTestProductService(t)

	productID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, uuid.New(), 150000, false))

	_, err := svc.RemoveProduct(uuid.New(), productID)
	assert.ErrorIs(t, err, ErrNotEntitled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchProducts_TrendingFilter(t *testing.T) {
	svc, mock := newTestProductService(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM "products" .*ORDER BY sales_count DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "price", "sales_count"}).
			AddRow(uuid.New(), "Bestseller", 150000, 99).
			AddRow(uuid.New(), "Runner Up", 120000, 42))

	params := paginationParams("trending", "")
	products, total, err := svc.SearchProducts(params)
	require.NoError(t, err)

	assert.Equal(t, int64(2), total)
	require.Len(t, products, 2)
	assert.Equal(t, "Bestseller", products[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchProducts_SaleFilter(t *testing.T) {
	svc, mock := newTestProductService(t)

	// Budget filter keeps only items under 50000 IDR.
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products" WHERE is_archived = \$1 AND price < \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "price"}).
			AddRow(uuid.New(), "Budget Icons", 25000))

	params := paginationParams("sale", "")
	products, total, err := svc.SearchProducts(params)
	require.NoError(t, err)

	assert.Equal(t, int64(1), total)
	require.Len(t, products, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
