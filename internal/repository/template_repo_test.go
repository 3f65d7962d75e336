// Package repository_test provides unit tests for the repository layer.
// Template repository tests verify the parameter catalog operations.
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

// TestTemplateRepository_Create verifies catalog template creation.
//
// Test Cases:
//   - Range template: bounds stored, ID and timestamp populated
//   - Duplicate name: unique violation surfaces as typed conflict
func TestTemplateRepository_Create(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	minRange := 235.0
	maxRange := 245.0
	unit := "g"

	tests := []struct {
		name         string
		mockSetup    func(pgxmock.PgxPoolIface)
		expectedKind apperrors.Kind
	}{
		{
			name: "range template",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"id", "created_at"}).AddRow(5, testTime)
				mock.ExpectQuery("INSERT INTO parameter_templates").
					WithArgs("Peso neto", "Net weight check", "range", (*string)(nil), &minRange, &maxRange, &unit).
					WillReturnRows(rows)
			},
		},
		{
			name: "duplicate name",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("INSERT INTO parameter_templates").
					WithArgs("Peso neto", "Net weight check", "range", (*string)(nil), &minRange, &maxRange, &unit).
					WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "parameter_templates_name_key"})
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
			repo := repository.NewTemplateRepository()

			template := &models.ParameterTemplate{
				Name:        "Peso neto",
				Description: "Net weight check",
				Kind:        models.KindRange,
				MinRange:    &minRange,
				MaxRange:    &maxRange,
				Unit:        &unit,
			}

			// Act
			err = repo.Create(context.Background(), template)

			// Assert
			if tt.expectedKind != "" {
				require.Error(t, err, "Duplicate name should fail")
				assert.True(t, apperrors.IsKind(err, tt.expectedKind), "Error kind should match")
			} else {
				assert.NoError(t, err, "Creation should succeed")
				assert.Equal(t, 5, template.ID, "Template ID should be set")
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// TestTemplateRepository_ListActive verifies the catalog picker query.
func TestTemplateRepository_ListActive(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	rows := pgxmock.NewRows([]string{
		"id", "name", "description", "kind", "default_value",
		"min_range", "max_range", "unit", "active", "created_at", "updated_at",
	}).
		AddRow(1, "Color", "Visual color check", "text", strPtr("Transparente"),
			(*float64)(nil), (*float64)(nil), (*string)(nil), true, testTime, (*time.Time)(nil)).
		AddRow(2, "pH", "Acidity reading", "numeric", (*string)(nil),
			(*float64)(nil), (*float64)(nil), (*string)(nil), true, testTime, (*time.Time)(nil))

	mock.ExpectQuery("SELECT id, name, description, kind").WillReturnRows(rows)

	repo := repository.NewTemplateRepository()

	templates, err := repo.ListActive(context.Background())

	assert.NoError(t, err, "Query should succeed")
	require.Len(t, templates, 2, "Should return 2 templates")
	assert.Equal(t, "Color", templates[0].Name)
	assert.Equal(t, "Transparente", *templates[0].DefaultValue, "Default value should round-trip")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestTemplateRepository_SetActive verifies the deactivation flag flip and
// the not-found translation when the id is unknown.
func TestTemplateRepository_SetActive(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		expectError  bool
	}{
		{name: "deactivate existing template", rowsAffected: 1},
		{name: "unknown template", rowsAffected: 0, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			oldDB := database.DB
			database.DB = mock
			defer func() { database.DB = oldDB }()

			mock.ExpectExec("UPDATE parameter_templates").
				WithArgs(false, 5).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.rowsAffected))

			repo := repository.NewTemplateRepository()

			err = repo.SetActive(context.Background(), 5, false)

			if tt.expectError {
				assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "Unknown id should be typed not-found")
			} else {
				assert.NoError(t, err, "Deactivation should succeed")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
