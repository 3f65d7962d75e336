// Package repository_test provides unit tests for the repository layer.
// Product repository tests verify product CRUD and the duplicate code guard.
package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProductRepository_Create verifies product insertion.
//
// Test Cases:
//   - Successful create: ID and timestamp populated
//   - Duplicate code: unique violation surfaces as typed conflict
func TestProductRepository_Create(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name         string
		mockSetup    func(pgxmock.PgxPoolIface)
		expectedKind apperrors.Kind
	}{
		{
			name: "successful create",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"id", "created_at"}).AddRow(3, testTime)
				mock.ExpectQuery("INSERT INTO products").
					WithArgs("PET Bottle 500ml", "PET-500").
					WillReturnRows(rows)
			},
		},
		{
			name: "duplicate code",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("INSERT INTO products").
					WithArgs("PET Bottle 500ml", "PET-500").
					WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "products_code_key"})
			},
			expectedKind: apperrors.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			oldDB := database.DB
			database.DB = mock
			defer func() { database.DB = oldDB }()

			tt.mockSetup(mock)
			repo := repository.NewProductRepository()

			product := &models.Product{Name: "PET Bottle 500ml", Code: "PET-500"}

			// Act
			err = repo.Create(context.Background(), product)

			// Assert
			if tt.expectedKind != "" {
				require.Error(t, err, "Duplicate code should fail")
				assert.True(t, apperrors.IsKind(err, tt.expectedKind), "Error kind should match")
			} else {
				assert.NoError(t, err, "Creation should succeed")
				assert.Equal(t, 3, product.ID, "Product ID should be set")
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// TestProductRepository_ListActive verifies the registration form query.
func TestProductRepository_ListActive(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	rows := pgxmock.NewRows([]string{"id", "name", "code", "active", "created_at"}).
		AddRow(3, "PET Bottle 500ml", "PET-500", true, testTime).
		AddRow(4, "PET Bottle 750ml", "PET-750", true, testTime)

	mock.ExpectQuery("SELECT id, name, code, active, created_at FROM products WHERE active").
		WillReturnRows(rows)

	repo := repository.NewProductRepository()

	products, err := repo.ListActive(context.Background())

	assert.NoError(t, err, "Query should succeed")
	require.Len(t, products, 2, "Should return 2 products")
	assert.Equal(t, "PET-500", products[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestProductRepository_SetActive verifies the soft-delete flag flip.
func TestProductRepository_SetActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectExec("UPDATE products SET active").
		WithArgs(false, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := repository.NewProductRepository()

	err = repo.SetActive(context.Background(), 3, false)

	assert.NoError(t, err, "Deactivation should succeed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
